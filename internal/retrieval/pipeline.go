package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Strategy selects which preset [Pipeline] (Query.EntrypointStrategy) is used.
type Strategy string

const (
	StrategyVectorOnly Strategy = "vector_only"
	StrategyGraphOnly  Strategy = "graph_only"
	StrategyHybrid     Strategy = "hybrid"
	StrategyAdaptive   Strategy = "adaptive"
)

// step is one entry in a Pipeline's ordered execution plan. Most steps wrap
// a single Stage; a fanOut step runs two stages concurrently and joins them
// with fusion — the only place a pipeline parallelizes work, matching the
// "vector + graph may be launched in parallel, fusion is the join point"
// concurrency rule.
type step struct {
	stage  Stage
	fanOut []Stage
	fusion *FusionStage
}

// DocMeta is the subset of a catalog row a Pipeline needs to apply
// doc_type/after/before filters, which candidates don't carry themselves.
type DocMeta struct {
	DocType   string
	Timestamp time.Time
}

// MetadataLookup resolves a candidate DocID to its DocMeta. ok is false if
// the document is unknown (e.g. deleted between retrieval and filtering);
// such candidates are dropped rather than risk serving stale filters.
type MetadataLookup func(ctx context.Context, docID string) (DocMeta, bool)

// Pipeline is a named, ordered composition of retrieval stages.
type Pipeline struct {
	Name     string
	steps    []step
	metadata MetadataLookup
}

// NewPipeline constructs an empty, named Pipeline. Use AddStage/AddFanOut to
// build it, or one of the Preset constructors below.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{Name: name}
}

// WithMetadataLookup wires a catalog lookup used to apply doc_type/after/
// before filters during Execute. Without one, only MinScore is enforced.
func (p *Pipeline) WithMetadataLookup(lookup MetadataLookup) *Pipeline {
	p.metadata = lookup
	return p
}

// AddStage appends a single sequential stage.
func (p *Pipeline) AddStage(s Stage) *Pipeline {
	p.steps = append(p.steps, step{stage: s})
	return p
}

// AddFanOut appends a step that runs stages concurrently, then fuses their
// outputs with fusion. Per-list weights are resolved at run time from the
// Context (see Context.WeightOrDefault), not fixed at construction time —
// IntentAdaptiveStage is the mechanism that rewrites them per query.
func (p *Pipeline) AddFanOut(fusion *FusionStage, stages ...Stage) *Pipeline {
	p.steps = append(p.steps, step{fanOut: stages, fusion: fusion})
	return p
}

// Execute runs the pipeline: k' is 2k for every step except the last, which
// receives k. The candidate set is truncated to k before returning.
func (p *Pipeline) Execute(ctx context.Context, query string, k int, rctx *Context) ([]Result, error) {
	if rctx == nil {
		rctx = &Context{}
	}

	var candidates []Result
	for i, st := range p.steps {
		kPrime := 2 * k
		if i == len(p.steps)-1 {
			kPrime = k
		}

		var err error
		if st.stage != nil {
			next, stageErr := st.stage.Run(ctx, query, kPrime, rctx, candidates)
			if stageErr != nil {
				slog.Warn("retrieval: stage failed, degrading candidate set", "stage", st.stage.Name(), "error", stageErr)
				if i == 0 {
					return []Result{}, nil
				}
				continue
			}
			candidates = next
		} else {
			candidates, err = p.runFanOut(ctx, st, query, kPrime, rctx)
			if err != nil {
				return nil, err
			}
		}
	}

	candidates = ApplyFilters(candidates, rctx.Filters)
	candidates = p.applyMetadataFilters(ctx, candidates, rctx.Filters)
	sortByScoreThenID(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// applyMetadataFilters enforces doc_type equality and inclusive after/before
// bounds on timestamp, both of which require a catalog lookup per candidate.
// With no lookup wired, it is a no-op — callers that never set those filter
// fields are unaffected either way.
func (p *Pipeline) applyMetadataFilters(ctx context.Context, results []Result, filter Filter) []Result {
	if p.metadata == nil || (filter.DocType == "" && filter.After.IsZero() && filter.Before.IsZero()) {
		return results
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		meta, ok := p.metadata(ctx, r.DocID)
		if !ok {
			continue
		}
		if filter.DocType != "" && meta.DocType != filter.DocType {
			continue
		}
		if !filter.After.IsZero() && meta.Timestamp.Before(filter.After) {
			continue
		}
		if !filter.Before.IsZero() && meta.Timestamp.After(filter.Before) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (p *Pipeline) runFanOut(ctx context.Context, st step, query string, k int, rctx *Context) ([]Result, error) {
	results := make([][]Result, len(st.fanOut))
	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range st.fanOut {
		i, stage := i, stage
		g.Go(func() error {
			r, err := stage.Run(gctx, query, k, rctx, nil)
			if err != nil {
				slog.Warn("retrieval: fan-out stage failed, excluding from fusion", "stage", stage.Name(), "error", err)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieval: fan-out: %w", err)
	}

	lists := make([]weighted, 0, len(st.fanOut))
	for i, stage := range st.fanOut {
		weight := 1.0
		switch stage.Name() {
		case "vector":
			weight = 0.6
		case "graph":
			weight = 0.4
		}
		if rctx != nil {
			weight = rctx.WeightOrDefault(stage.Name(), weight)
		}
		lists = append(lists, weighted{results: results[i], weight: weight})
	}
	return st.fusion.Fuse(lists...), nil
}
