package main

import (
	"context"
	"os"

	"github.com/bazaarnet/bazaar/cmd/bazaar/commands"
	"github.com/bazaarnet/bazaar/config"
)

func main() {
	conf := config.DefaultConfig()

	rootCmd := commands.RootCommand(conf)
	rootCmd.AddCommand(
		commands.MakeInitCommand(conf),
		commands.MakeStartCommand(conf),
		commands.VersionCmd,
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
