// Package retrieval implements the hybrid retrieval fabric: composable
// stages that fuse dense-vector search with a typed property graph, then
// rerank and diversify the fused candidate set.
package retrieval

import (
	"context"
	"sort"
	"time"
)

// Source identifies which retrieval path produced a [Result].
type Source string

const (
	SourceVector Source = "vector"
	SourceGraph  Source = "graph"
	SourceHybrid Source = "hybrid"
)

// Result is a single scored retrieval candidate. Stages must preserve
// DocID across transformations — it is the candidate's identity.
type Result struct {
	DocID           string
	Content         string
	Score           float64
	Source          Source
	MatchedEntities []string
	HopDistance     int
	Embedding       []float32
	Metadata        map[string]any
}

// Filter narrows which documents a retrieving stage may return. DocType and
// MinScore are pruned by the pipeline once all stages have run; After/Before bound
// Document.Timestamp inclusively.
type Filter struct {
	DocType  string
	After    time.Time
	Before   time.Time
	MinScore float64
}

// Context is the shared, mutable state threaded through a single pipeline
// execution: detected entities, filters, and per-stage weight overrides
// that IntentAdaptiveStage may rewrite for the remaining stages.
type Context struct {
	Filters       Filter
	QueryEntities []string
	StageWeights  map[string]float64
	ExtraMetadata map[string]any
}

// WeightOrDefault returns the override for stage, or def if none is set.
func (c *Context) WeightOrDefault(stage string, def float64) float64 {
	if c == nil || c.StageWeights == nil {
		return def
	}
	if w, ok := c.StageWeights[stage]; ok {
		return w
	}
	return def
}

// SetWeight records a stage-weight override for the remainder of the
// pipeline execution.
func (c *Context) SetWeight(stage string, weight float64) {
	if c.StageWeights == nil {
		c.StageWeights = map[string]float64{}
	}
	c.StageWeights[stage] = weight
}

// Stage is a single retrieval operation. Implementations must normalize
// Score to [0,1] before returning and must not rewrite DocID.
type Stage interface {
	// Name identifies the stage for weighting, logging, and preset wiring.
	Name() string

	// Run executes the stage. candidates is the output of the previous
	// stage (nil for the first stage in a pipeline). k is the requested
	// candidate-set size for this stage (typically 2k in early stages,
	// k after diversity).
	Run(ctx context.Context, query string, k int, rctx *Context, candidates []Result) ([]Result, error)
}

// ApplyFilters drops candidates failing filter. doc lookup is supplied by
// callers that have catalog rows available (MinScore alone needs no lookup).
func ApplyFilters(results []Result, filter Filter) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if filter.MinScore > 0 && r.Score < filter.MinScore {
			continue
		}
		out = append(out, r)
	}
	return out
}

// normalizeScores rescales scores into [0,1] by dividing by the maximum
// observed score, so the top candidate always lands at 1.0. A zero or
// negative maximum (empty input, or every score zero) leaves scores as-is.
func normalizeScores(results []Result) {
	max := 0.0
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max <= 0 {
		return
	}
	for i := range results {
		results[i].Score /= max
	}
}

// sortByScoreThenID orders results by (score desc, doc_id asc), the tie-break
// policy every stage must apply before returning.
func sortByScoreThenID(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}
