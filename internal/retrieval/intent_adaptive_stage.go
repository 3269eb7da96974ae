package retrieval

import (
	"context"

	"github.com/knowlode/knowlode/internal/nlp/ner"
)

// entityDenseThreshold is the named-entity count at or above which a query
// is considered entity-dense and the graph path is favored.
const entityDenseThreshold = 2

// IntentAdaptiveStage rewrites stage weights for the remainder of the
// pipeline based on entities detected in the query: an entity-dense query
// with a graph retriever available boosts the graph weight, otherwise the
// semantic (vector) path is favored.
type IntentAdaptiveStage struct {
	entities     ner.Detector
	hasGraphPath bool
}

// NewIntentAdaptiveStage constructs an IntentAdaptiveStage. hasGraphPath
// tells the stage whether a graph retriever is wired into this pipeline.
func NewIntentAdaptiveStage(entities ner.Detector, hasGraphPath bool) *IntentAdaptiveStage {
	return &IntentAdaptiveStage{entities: entities, hasGraphPath: hasGraphPath}
}

func (s *IntentAdaptiveStage) Name() string { return "intent_adaptive" }

func (s *IntentAdaptiveStage) Run(ctx context.Context, query string, k int, rctx *Context, candidates []Result) ([]Result, error) {
	if rctx == nil {
		return candidates, nil
	}

	extracted, err := s.entities.Extract(ctx, query)
	if err != nil {
		// Entity detection failing should not fail the pipeline; fall back
		// to the default weighting.
		return candidates, nil
	}

	names := make([]string, 0, len(extracted))
	for _, e := range extracted {
		names = append(names, e.Text)
	}
	rctx.QueryEntities = names

	if len(names) >= entityDenseThreshold && s.hasGraphPath {
		rctx.SetWeight("graph", 0.7)
		rctx.SetWeight("vector", 0.3)
	} else {
		rctx.SetWeight("vector", 0.7)
		rctx.SetWeight("graph", 0.3)
	}

	return candidates, nil
}
