package retrieval

import (
	"context"
	"log/slog"

	"github.com/knowlode/knowlode/internal/nlp/ner"
)

// PresetBasic runs a plain vector search through the heuristic-or-LM
// semantic rerank. No graph, no diversity filtering.
func PresetBasic(vector *VectorRetrievalStage, rerank *SemanticRerankStage) *Pipeline {
	return NewPipeline("basic").
		AddStage(vector).
		AddStage(rerank)
}

// PresetAdvanced fans vector and graph retrieval out in parallel, fuses them
// with Reciprocal Rank Fusion, then reranks. The default fan-out weighting
// (vector 0.6, graph 0.4) applies unless a prior IntentAdaptiveStage step
// has already rewritten rctx.StageWeights.
func PresetAdvanced(vector *VectorRetrievalStage, graph *GraphRetrievalStage, rerank *SemanticRerankStage) *Pipeline {
	return NewPipeline("advanced").
		AddFanOut(NewFusionStage(), vector, graph).
		AddStage(rerank)
}

// PresetSemantic adapts stage weights to query intent, reranks, then
// diversifies the final set with MMR (lambda 0.7).
func PresetSemantic(vector *VectorRetrievalStage, intent *IntentAdaptiveStage, rerank *SemanticRerankStage, diversity *DiversityFilterStage) *Pipeline {
	return NewPipeline("semantic").
		AddStage(intent).
		AddStage(vector).
		AddStage(rerank).
		AddStage(diversity)
}

// PresetVectorOnly runs dense-vector search alone, with no rerank or
// diversity pass.
func PresetVectorOnly(vector *VectorRetrievalStage) *Pipeline {
	return NewPipeline("vector_only").AddStage(vector)
}

// PresetGraphOnly runs graph traversal alone. If graph is nil (no graph
// retriever wired into this deployment), it degrades to PresetVectorOnly
// and logs once, since a query has to resolve to something.
func PresetGraphOnly(graph *GraphRetrievalStage, vector *VectorRetrievalStage) *Pipeline {
	if graph == nil {
		slog.Warn("retrieval: graph_only requested with no graph retriever wired, falling back to vector_only")
		return PresetVectorOnly(vector)
	}
	return NewPipeline("graph_only").AddStage(graph)
}

// Router selects and executes a preset pipeline per query, implementing the
// ADAPTIVE strategy: entity-dense queries with a graph retriever available
// use the advanced (hybrid) pipeline, everything else uses semantic.
type Router struct {
	Advanced   *Pipeline
	Semantic   *Pipeline
	VectorOnly *Pipeline
	GraphOnly  *Pipeline

	// entities detects whether a query carries named entities, used only
	// to resolve StrategyAdaptive. Stages within the chosen pipeline run
	// their own entity detection independently.
	entities     ner.Detector
	hasGraphPath bool
}

// NewRouter constructs a Router over a set of preset pipelines. entities and
// hasGraphPath are used only to resolve StrategyAdaptive.
func NewRouter(advanced, semantic, vectorOnly, graphOnly *Pipeline, entities ner.Detector, hasGraphPath bool) *Router {
	return &Router{
		Advanced:     advanced,
		Semantic:     semantic,
		VectorOnly:   vectorOnly,
		GraphOnly:    graphOnly,
		entities:     entities,
		hasGraphPath: hasGraphPath,
	}
}

// Retrieve selects a pipeline for strategy and runs it. StrategyAdaptive
// inspects the query: if it carries named entities and a graph retriever is
// wired in, it runs Advanced; otherwise it runs Semantic.
func (r *Router) Retrieve(ctx context.Context, query string, k int, strategy Strategy, rctx *Context) ([]Result, error) {
	pipeline, err := r.resolve(ctx, query, strategy)
	if err != nil {
		return nil, err
	}
	return pipeline.Execute(ctx, query, k, rctx)
}

func (r *Router) resolve(ctx context.Context, query string, strategy Strategy) (*Pipeline, error) {
	switch strategy {
	case StrategyVectorOnly:
		return r.VectorOnly, nil
	case StrategyGraphOnly:
		return r.GraphOnly, nil
	case StrategyHybrid:
		return r.Advanced, nil
	case StrategyAdaptive, "":
		return r.resolveAdaptive(ctx, query), nil
	default:
		slog.Warn("retrieval: unknown strategy, defaulting to adaptive", "strategy", strategy)
		return r.resolveAdaptive(ctx, query), nil
	}
}

func (r *Router) resolveAdaptive(ctx context.Context, query string) *Pipeline {
	if r.entities == nil || !r.hasGraphPath {
		return r.Semantic
	}
	entities, err := r.entities.Extract(ctx, query)
	if err != nil || len(entities) == 0 {
		return r.Semantic
	}
	return r.Advanced
}
