package capability

import (
	"context"

	"github.com/knowlode/knowlode/internal/config"
	"github.com/knowlode/knowlode/internal/nlp/ner"
	"github.com/knowlode/knowlode/internal/retrieval"
	"github.com/knowlode/knowlode/internal/store/catalog"
	"github.com/knowlode/knowlode/internal/store/graphstore"
	"github.com/knowlode/knowlode/internal/store/vectorstore"
	"github.com/knowlode/knowlode/pkg/embedding"
	"github.com/knowlode/knowlode/pkg/llm"
)

// defaultMaxHops bounds graph traversal depth when cfg doesn't override it.
const defaultMaxHops = 2

// defaultMMRLambda is the diversity filter's relevance/diversity trade-off
// when cfg.Retrieval.MMRLambda is left at its zero value.
const defaultMMRLambda = 0.7

// RetrievalDeps are the collaborators a retrieval router is assembled from.
// Graph may be nil — the router then degrades graph_only/advanced to
// vector-only/semantic presets, per [retrieval.PresetGraphOnly]. Entities
// must not be nil: both the intent-adaptive stage and the graph stage call
// it unconditionally.
type RetrievalDeps struct {
	Vectors  *vectorstore.Store
	Catalog  catalog.Catalog
	Graph    graphstore.GraphStore
	Embedder embedding.Provider
	LLM      llm.Provider
	Entities ner.Detector
}

// CreateRetrievalRouter assembles (or returns a cached) *retrieval.Router
// wired to deps and tuned by cfg. It builds all four preset pipelines
// (vector_only, graph_only, advanced/hybrid, semantic) and wraps each with a
// catalog-backed metadata lookup for doc_type/after/before filtering.
func (f *Factory) CreateRetrievalRouter(deps RetrievalDeps, cfg config.RetrievalConfig, cacheKey string) *retrieval.Router {
	if v, ok := f.cached(cacheKey); ok {
		return v.(*retrieval.Router)
	}

	contentOf := func(ctx context.Context, id string) (string, error) {
		row, err := deps.Catalog.Get(ctx, id)
		if err != nil {
			return "", err
		}
		return row.Content, nil
	}
	vectorStage := retrieval.NewVectorRetrievalStage(deps.Vectors, deps.Embedder, contentOf)
	rerankStage := retrieval.NewSemanticRerankStage(deps.LLM)
	intentStage := retrieval.NewIntentAdaptiveStage(deps.Entities, deps.Graph != nil)

	mmrLambda := cfg.MMRLambda
	if mmrLambda <= 0 {
		mmrLambda = defaultMMRLambda
	}
	diversityStage := retrieval.NewDiversityFilterStage(mmrLambda)

	lookup := retrieval.MetadataLookup(func(ctx context.Context, docID string) (retrieval.DocMeta, bool) {
		row, err := deps.Catalog.Get(ctx, docID)
		if err != nil {
			return retrieval.DocMeta{}, false
		}
		return retrieval.DocMeta{DocType: string(row.DocType), Timestamp: row.Timestamp}, true
	})

	vectorOnly := retrieval.PresetVectorOnly(vectorStage).WithMetadataLookup(lookup)
	semantic := retrieval.PresetSemantic(vectorStage, intentStage, rerankStage, diversityStage).WithMetadataLookup(lookup)

	var graphStage *retrieval.GraphRetrievalStage
	var graphOnly, advanced *retrieval.Pipeline
	if deps.Graph != nil {
		graphStage = retrieval.NewGraphRetrievalStage(deps.Graph, deps.Entities, resolveDocumentNode, defaultMaxHops, deps.Embedder)
		graphOnly = retrieval.PresetGraphOnly(graphStage, vectorStage).WithMetadataLookup(lookup)
		advanced = retrieval.PresetAdvanced(vectorStage, graphStage, rerankStage).WithMetadataLookup(lookup)
	} else {
		// No graph retriever wired into this deployment: graph_only and
		// hybrid both degrade to the pipelines that don't need one.
		graphOnly = vectorOnly
		advanced = semantic
	}

	router := retrieval.NewRouter(advanced, semantic, vectorOnly, graphOnly, deps.Entities, deps.Graph != nil)
	f.store(cacheKey, router)
	return router
}

// resolveDocumentNode treats Document- and Memory-labeled graph nodes as
// retrievable candidates, reading the doc_id/content properties the memory
// store writes when it mirrors a stored item into the graph.
func resolveDocumentNode(node graphstore.Node) (docID, content string, ok bool) {
	if node.Label != graphstore.LabelDocument && node.Label != graphstore.LabelMemory {
		return "", "", false
	}
	docID, _ = node.Properties["doc_id"].(string)
	content, _ = node.Properties["content"].(string)
	if docID == "" {
		return "", "", false
	}
	return docID, content, true
}
