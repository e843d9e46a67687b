package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bazaarnet/bazaar/config"
	"github.com/bazaarnet/bazaar/libs/cli"
	"github.com/bazaarnet/bazaar/libs/log"
)

// ParseConfig retrieves the default environment configuration,
// sets up the bazaar root and validates the result.
func ParseConfig(conf *config.Config) (*config.Config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCommand constructs the root command-line entry point. Subcommands see
// conf populated from flags, BAZAAR_* environment variables and the config
// file, in that order of precedence.
func RootCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bazaar",
		Short: "UDP rendezvous server for a peer-to-peer reverse-auction marketplace",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == VersionCmd.Name() {
				return nil
			}

			pconf, err := ParseConfig(conf)
			if err != nil {
				return err
			}
			*conf = *pconf
			return config.EnsureRoot(conf.RootDir)
		},
	}
	cmd.PersistentFlags().String("log_level", conf.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("log_format", conf.LogFormat, "log format (plain|json)")
	return cli.PrepareBaseCmd(cmd, "BAZAAR", cli.DefaultHome(config.DefaultBazaarDir))
}

func newLogger(conf *config.Config) (log.Logger, error) {
	logger, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.With("module", "main"), nil
}
