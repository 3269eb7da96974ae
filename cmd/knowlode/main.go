// Command knowlode is the entry point for the personal knowledge and memory
// engine: ingest notes and conversation turns, classify their retention
// tier, and retrieve them later through vector, graph, or hybrid search.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
