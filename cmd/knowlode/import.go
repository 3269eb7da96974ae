package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowlode/knowlode/internal/importer"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load a YAML file of graph nodes and relationships",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to a graph import YAML file (required)")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	if importFilePath == "" {
		return fmt.Errorf("knowlode: --file is required")
	}

	sys, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer sys.Close()

	file, err := importer.LoadFile(importFilePath)
	if err != nil {
		return err
	}

	count, err := importer.Import(cmd.Context(), sys.memory.Graph, file.Domain, file.Nodes)
	if err != nil {
		return fmt.Errorf("knowlode: import aborted after %d node(s): %w", count, err)
	}

	fmt.Printf("imported %d node(s) into domain %q\n", count, file.Domain)
	return nil
}
