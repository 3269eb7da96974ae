package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowlode/knowlode/internal/memstore"
	"github.com/knowlode/knowlode/internal/store/catalog"
)

var (
	ingestText       string
	ingestDocType    string
	ingestImportance float64
	ingestRetention  string
	ingestSource     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Classify and store a new memory",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "content to store (reads stdin if omitted)")
	ingestCmd.Flags().StringVar(&ingestDocType, "doc-type", string(catalog.DocConversation), "document type: knowledge, conversation, work_log, life_record")
	ingestCmd.Flags().Float64Var(&ingestImportance, "importance", 0.5, "importance in [0,1]")
	ingestCmd.Flags().StringVar(&ingestRetention, "retention", "", "override the classifier: permanent, temporary, casual_chat")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "cli", "free-form provenance label")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	text := ingestText
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("knowlode: read stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("knowlode: nothing to ingest — pass --text or pipe content on stdin")
	}

	sys, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	hint := catalog.RetentionType(ingestRetention)
	retentionType, err := sys.memory.Retention.Classify(ctx, text, hint)
	if err != nil {
		return fmt.Errorf("knowlode: classify retention: %w", err)
	}

	id, stored, err := sys.memory.Store.Store(ctx, memstore.StoreRequest{
		Content:       text,
		Importance:    ingestImportance,
		DocType:       catalog.DocType(ingestDocType),
		Source:        ingestSource,
		RetentionType: retentionType,
	})
	if err != nil {
		return fmt.Errorf("knowlode: store memory: %w", err)
	}

	fmt.Printf("stored=%t %s (retention=%s)\n", stored, id, retentionType)
	return nil
}
