package types

// PeerState is the protocol state the server tracks for one registered peer.
type PeerState string

const (
	PeerUnregistered PeerState = "UNREGISTERED"
	PeerRegistering  PeerState = "REGISTERING"
	PeerRegistered   PeerState = "REGISTERED"
	PeerSearching    PeerState = "SEARCHING"
	PeerOffering     PeerState = "OFFERING"
	PeerNegotiating  PeerState = "NEGOTIATING"
	PeerBuying       PeerState = "BUYING"
	PeerError        PeerState = "ERROR"
)

func (s PeerState) String() string { return string(s) }

// ServerState is the global protocol state of the rendezvous server.
type ServerState string

const (
	ServerListening              ServerState = "LISTENING"
	ServerProcessingRegistration ServerState = "PROCESSING_REGISTRATION"
	ServerProcessingSearch       ServerState = "PROCESSING_SEARCH"
	ServerProcessingOffer        ServerState = "PROCESSING_OFFER"
	ServerProcessingPurchase     ServerState = "PROCESSING_PURCHASE"
	ServerError                  ServerState = "ERROR"
)

func (s ServerState) String() string { return string(s) }
