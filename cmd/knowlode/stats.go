package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show capability factory cache usage",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	sys, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer sys.Close()

	total, keys := sys.factory.CacheInfo()
	fmt.Printf("cached components: %d\n", total)
	for _, k := range keys {
		fmt.Printf("  %s\n", k)
	}
	return nil
}
