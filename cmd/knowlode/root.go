package main

import (
	"github.com/spf13/cobra"
)

// configPath is shared by every subcommand via a persistent flag.
var configPath string

var rootCmd = &cobra.Command{
	Use:           "knowlode",
	Short:         "A personal knowledge and memory engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
}
