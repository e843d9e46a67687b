package commands

import (
	"github.com/spf13/cobra"

	"github.com/bazaarnet/bazaar/config"
)

// MakeInitCommand returns the command that writes a default config file into
// the home directory unless one already exists.
func MakeInitCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the bazaar home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(conf)
			if err != nil {
				return err
			}

			written, err := config.WriteDefaultConfigFileIfNone(conf.RootDir)
			if err != nil {
				return err
			}
			if !written {
				logger.Info("found config file", "path", conf.ConfigFile())
				return nil
			}
			logger.Info("generated config file", "path", conf.ConfigFile())
			return nil
		},
	}
}
