package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowlode/knowlode/internal/retrieval"
)

var (
	queryTopK     int
	queryStrategy string
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Retrieve memories matching a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top", 5, "number of results to return")
	queryCmd.Flags().StringVar(&queryStrategy, "strategy", "", "vector_only, graph_only, hybrid, adaptive (default: config's retrieval.default_strategy)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sys, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	strategy := retrieval.Strategy(queryStrategy)
	if strategy == "" {
		strategy = retrieval.Strategy(sys.cfg.Retrieval.DefaultStrategy)
	}

	results, err := sys.memory.Router.Retrieve(ctx, args[0], queryTopK, strategy, &retrieval.Context{})
	if err != nil {
		return fmt.Errorf("knowlode: retrieve: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] (%s) %s\n", i+1, r.Score, r.Source, truncate(r.Content, 100))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
