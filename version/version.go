package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = BazaarVersion
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// BazaarVersion is the semantic version of the server.
	// Must be a string because scripts like dist.sh read this file.
	BazaarVersion = "0.3.0"

	// ProtocolVersion is bumped whenever the datagram vocabulary or a
	// message's required fields change.
	ProtocolVersion = "1"
)
