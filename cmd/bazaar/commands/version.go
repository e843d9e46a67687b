package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bazaarnet/bazaar/version"
)

var verbose bool

// VersionCmd prints the server version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return nil
		}

		bs, err := json.Marshal(struct {
			Bazaar   string `json:"bazaar"`
			Protocol string `json:"protocol"`
		}{
			Bazaar:   version.Version,
			Protocol: version.ProtocolVersion,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bs))
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol version as well")
}
