package capability

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowlode/knowlode/internal/config"
	"github.com/knowlode/knowlode/internal/memstore"
	"github.com/knowlode/knowlode/internal/nlp/emotion"
	"github.com/knowlode/knowlode/internal/nlp/intent"
	"github.com/knowlode/knowlode/internal/nlp/ner"
	"github.com/knowlode/knowlode/internal/retrieval"
	"github.com/knowlode/knowlode/internal/store/graphstore"
	"github.com/knowlode/knowlode/pkg/llm"
)

// NLPPackage bundles the three cascade-based detectors that share a single
// LM provider, matching the way emotion/intent/entity analysis are always
// needed together when a new message arrives.
type NLPPackage struct {
	Entities ner.Detector
	Emotion  *emotion.CascadeDetector
	Intent   *intent.Recognizer
}

// CreateNLPPackage builds (or reuses, under cachePrefix) the full detector
// set for provider. Every sub-component's cache key is derived from
// cachePrefix so repeated calls with the same prefix return the same
// instances instead of rebuilding the cascade engines.
func (f *Factory) CreateNLPPackage(provider llm.Provider, cachePrefix string) NLPPackage {
	entities := f.CreateEntityExtractor(provider, keyFor(cachePrefix, "ner"))
	return NLPPackage{
		Entities: entities,
		Emotion:  f.CreateEmotionDetector(provider, keyFor(cachePrefix, "emotion")),
		Intent:   f.CreateIntentRecognizer(provider, entities, keyFor(cachePrefix, "intent")),
	}
}

// MemorySystem bundles everything a caller needs to store and recall
// memories: the coordinating store plus the classifier that decides how
// long a new memory should live.
type MemorySystem struct {
	Store     *memstore.Store
	Retention *memstore.RetentionClassifier
	Router    *retrieval.Router
	Graph     graphstore.GraphStore
}

// CreateMemorySystem assembles a complete MemorySystem from cfg: providers,
// stores, detectors, the memory store, and the retrieval router, all
// memoized under fixed per-component cache keys (e.g. "vectors:main",
// "router:main") so a second call with the same config returns the
// identical instances rather than duplicating
// connections to the same backend.
func (f *Factory) CreateMemorySystem(cfg *config.Config, pool *pgxpool.Pool) (*MemorySystem, error) {
	llmProvider, err := f.CreateLLM(cfg.Providers.LLM, "llm:"+cfg.Providers.LLM.Name)
	if err != nil {
		return nil, fmt.Errorf("capability: create llm provider: %w", err)
	}
	embedder, err := f.CreateEmbeddings(cfg.Providers.Embeddings, "embeddings:"+cfg.Providers.Embeddings.Name)
	if err != nil {
		return nil, fmt.Errorf("capability: create embeddings provider: %w", err)
	}

	vectors := f.CreateVectorStore(cfg.Store.EmbeddingDimensions, "vectors:main")
	cat := f.CreateCatalog(pool, "catalog:main")
	graph := f.CreateGraphStore(pool, "graph:main")

	nlp := f.CreateNLPPackage(llmProvider, "nlp:main")

	store, err := f.CreateMemoryStore(vectors, cat, embedder, cfg.Retention, "memstore:main")
	if err != nil {
		return nil, fmt.Errorf("capability: create memory store: %w", err)
	}
	retentionClassifier := f.CreateRetentionClassifier(llmProvider, "retention:main")

	router := f.CreateRetrievalRouter(RetrievalDeps{
		Vectors:  vectors,
		Catalog:  cat,
		Graph:    graph,
		Embedder: embedder,
		LLM:      llmProvider,
		Entities: nlp.Entities,
	}, cfg.Retrieval, "router:main")

	return &MemorySystem{
		Store:     store,
		Retention: retentionClassifier,
		Router:    router,
		Graph:     graph,
	}, nil
}

// keyFor joins a cache prefix and component name into a single cache key.
// An empty prefix propagates to an empty key, so CreateMemorySystem-free
// callers can still request uncached components by passing "".
func keyFor(prefix, component string) string {
	if prefix == "" {
		return ""
	}
	return prefix + ":" + component
}
