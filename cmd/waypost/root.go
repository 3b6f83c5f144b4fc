package main

import (
	"github.com/spf13/cobra"

	"github.com/waypost/waypost/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the waypost CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waypost",
		Short: "Waypost - pre-authentication credential broker",
		Long: `Waypost resolves usernames to their backend data store, verifies
credentials against that store, and hands clients the endpoint they
should talk to directly.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// resolveConfigFile returns the --config value, or the XDG user config
// file when one exists. An empty result means flag and built-in defaults.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return xdg.DefaultConfigFile()
}
