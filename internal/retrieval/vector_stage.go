package retrieval

import (
	"context"
	"fmt"

	"github.com/knowlode/knowlode/internal/store/vectorstore"
	"github.com/knowlode/knowlode/pkg/embedding"
)

// VectorRetrievalStage embeds the query and performs k-NN search against the
// vector index, tagging results source=vector.
type VectorRetrievalStage struct {
	index     *vectorstore.Store
	embedder  embedding.Provider
	contentOf func(ctx context.Context, id string) (string, error)
}

// NewVectorRetrievalStage constructs a VectorRetrievalStage. contentOf
// resolves a document ID to its content (typically a catalog lookup);
// passing nil leaves Content empty on returned candidates.
func NewVectorRetrievalStage(index *vectorstore.Store, embedder embedding.Provider, contentOf func(ctx context.Context, id string) (string, error)) *VectorRetrievalStage {
	return &VectorRetrievalStage{index: index, embedder: embedder, contentOf: contentOf}
}

func (s *VectorRetrievalStage) Name() string { return "vector" }

func (s *VectorRetrievalStage) Run(ctx context.Context, query string, k int, rctx *Context, candidates []Result) ([]Result, error) {
	embedded, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector stage: embed query: %w", err)
	}

	hits, err := s.index.Search(ctx, embedded.Vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector stage: search: %w", err)
	}

	weight := 1.0
	if rctx != nil {
		weight = rctx.WeightOrDefault(s.Name(), 1.0)
	}

	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		content := ""
		if s.contentOf != nil {
			if c, err := s.contentOf(ctx, hit.ID); err == nil {
				content = c
			}
		}
		out = append(out, Result{
			DocID:     hit.ID,
			Content:   content,
			Score:     hit.Score * weight,
			Source:    SourceVector,
			Embedding: embedded.Vector,
			Metadata:  map[string]any{"raw_score": hit.Score, "weight": weight},
		})
	}

	normalizeScores(out)
	sortByScoreThenID(out)
	return out, nil
}
