package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bazaarnet/bazaar/config"
	"github.com/bazaarnet/bazaar/node"
)

// AddNodeFlags exposes the most common configuration options on the
// command line.
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("moniker", conf.Moniker, "node name")

	// server flags
	cmd.Flags().String("server.listen_address", conf.Server.ListenAddress, "UDP address the rendezvous server binds")
	cmd.Flags().Int("server.workers", conf.Server.Workers, "number of event-processing workers (0 means one per CPU)")
	cmd.Flags().Int("server.max_peers", conf.Server.MaxPeers, "maximum number of registered peers")

	// auction flags
	cmd.Flags().Duration("auction.window", conf.Auction.Window, "how long a search collects offers")

	// instrumentation flags
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "collect Prometheus metrics")

	// inspect flags
	cmd.Flags().String("inspect.listen_address", conf.Inspect.ListenAddress, "HTTP address of the inspect endpoint (empty disables it)")
}

// MakeStartCommand returns the command that runs the server until it
// receives SIGINT or SIGTERM.
func MakeStartCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the rendezvous server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(conf)
			if err != nil {
				return err
			}

			n, err := node.NewDefault(conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}
			logger.Info("started node", "addr", n.Server().ListenAddr(), "inspect", n.InspectAddr())

			n.Wait()
			logger.Info("node stopped")
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
