// Package capability assembles the concrete components the rest of
// knowlode depends on only through interfaces: LM and embedding transports,
// the vector index, the metadata catalog, the property graph, the NLP
// detectors, the memory store, and the retrieval router.
//
// Factory is the only place a concrete store type or detector implementation
// is constructed. Every other package accepts interfaces (llm.Provider,
// embedding.Provider, catalog.Catalog, graphstore.GraphStore, ner.Detector)
// and never imports a concrete backend directly.
package capability

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowlode/knowlode/internal/config"
	"github.com/knowlode/knowlode/internal/memstore"
	"github.com/knowlode/knowlode/internal/nlp/emotion"
	"github.com/knowlode/knowlode/internal/nlp/intent"
	"github.com/knowlode/knowlode/internal/nlp/ner"
	"github.com/knowlode/knowlode/internal/retrieval"
	"github.com/knowlode/knowlode/internal/store/catalog"
	"github.com/knowlode/knowlode/internal/store/graphstore"
	"github.com/knowlode/knowlode/internal/store/vectorstore"
	"github.com/knowlode/knowlode/pkg/embedding"
	embeddingopenai "github.com/knowlode/knowlode/pkg/embedding/openai"
	"github.com/knowlode/knowlode/pkg/llm"
	"github.com/knowlode/knowlode/pkg/llm/anyllm"
	"github.com/knowlode/knowlode/pkg/llm/openai"
)

// Factory constructs and memoizes component instances keyed by a
// caller-supplied string tag, so that multiple callers can share a single
// underlying vector store, embedding provider, or detector instance without
// every caller threading the dependency through by hand.
//
// A create call made with an empty cacheKey always returns a fresh,
// uncached instance. Factory is safe for concurrent use.
type Factory struct {
	registry *config.Registry

	mu    sync.RWMutex
	cache map[string]any
}

// New returns a ready-to-use Factory with the built-in LLM and embedding
// provider constructors (openai, anthropic, anyllm) pre-registered on its
// internal config.Registry.
func New() *Factory {
	f := &Factory{
		registry: config.NewRegistry(),
		cache:    make(map[string]any),
	}
	f.registerDefaultProviders()
	return f
}

// Registry exposes the underlying provider registry so callers can register
// additional provider names before constructing components from a config.
func (f *Factory) Registry() *config.Registry {
	return f.registry
}

func (f *Factory) registerDefaultProviders() {
	f.registry.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})
	f.registry.RegisterLLM("anthropic", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewAnthropic(entry.Model, anyllmOptsFor(entry)...)
	})
	f.registry.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend, _ := entry.Options["backend"].(string)
		if backend == "" {
			return nil, fmt.Errorf("capability: providers.llm.options.backend is required for the anyllm provider")
		}
		return anyllm.New(backend, entry.Model, anyllmOptsFor(entry)...)
	})

	f.registry.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embedding.Provider, error) {
		var opts []embeddingopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, embeddingopenai.WithBaseURL(entry.BaseURL))
		}
		return embeddingopenai.New(entry.APIKey, entry.Model, opts...)
	})
}

func anyllmOptsFor(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// cached returns the value stored under key and true, or nil and false if
// key is empty or not present.
func (f *Factory) cached(key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.cache[key]
	return v, ok
}

func (f *Factory) store(key string, v any) {
	if key == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[key] = v
}

// ClearCache evicts cached instances. With an empty pattern it clears
// everything; otherwise it evicts every key containing pattern as a substring.
func (f *Factory) ClearCache(pattern string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pattern == "" {
		n := len(f.cache)
		f.cache = make(map[string]any)
		slog.Info("capability: cleared all cached instances", "count", n)
		return
	}
	var removed int
	for k := range f.cache {
		if strings.Contains(k, pattern) {
			delete(f.cache, k)
			removed++
		}
	}
	slog.Info("capability: cleared cached instances matching pattern", "pattern", pattern, "count", removed)
}

// CacheInfo reports the number of cached instances and their keys.
func (f *Factory) CacheInfo() (total int, keys []string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys = make([]string, 0, len(f.cache))
	for k := range f.cache {
		keys = append(keys, k)
	}
	return len(f.cache), keys
}

// CreateLLM constructs (or returns a cached) llm.Provider for entry, using
// the provider named by entry.Name from the registry.
func (f *Factory) CreateLLM(entry config.ProviderEntry, cacheKey string) (llm.Provider, error) {
	if v, ok := f.cached(cacheKey); ok {
		return v.(llm.Provider), nil
	}
	p, err := f.registry.CreateLLM(entry)
	if err != nil {
		return nil, err
	}
	f.store(cacheKey, p)
	return p, nil
}

// CreateEmbeddings constructs (or returns a cached) embedding.Provider for entry.
func (f *Factory) CreateEmbeddings(entry config.ProviderEntry, cacheKey string) (embedding.Provider, error) {
	if v, ok := f.cached(cacheKey); ok {
		return v.(embedding.Provider), nil
	}
	p, err := f.registry.CreateEmbeddings(entry)
	if err != nil {
		return nil, err
	}
	f.store(cacheKey, p)
	return p, nil
}

// CreateVectorStore constructs (or returns a cached) *vectorstore.Store of
// the given dimensionality.
func (f *Factory) CreateVectorStore(dimension int, cacheKey string) *vectorstore.Store {
	if v, ok := f.cached(cacheKey); ok {
		return v.(*vectorstore.Store)
	}
	s := vectorstore.New(dimension)
	f.store(cacheKey, s)
	return s
}

// CreateCatalog constructs (or returns a cached) catalog.Catalog. A nil pool
// returns an in-memory catalog; otherwise pool must already be open and is
// handed to a PostgresCatalog.
func (f *Factory) CreateCatalog(pool *pgxpool.Pool, cacheKey string) catalog.Catalog {
	if v, ok := f.cached(cacheKey); ok {
		return v.(catalog.Catalog)
	}
	var c catalog.Catalog
	if pool == nil {
		c = catalog.NewMemCatalog()
	} else {
		c = catalog.NewPostgresCatalog(pool)
	}
	f.store(cacheKey, c)
	return c
}

// CreateGraphStore constructs (or returns a cached) graphstore.GraphStore.
// A nil pool returns an in-memory store.
func (f *Factory) CreateGraphStore(pool *pgxpool.Pool, cacheKey string) graphstore.GraphStore {
	if v, ok := f.cached(cacheKey); ok {
		return v.(graphstore.GraphStore)
	}
	var g graphstore.GraphStore
	if pool == nil {
		g = graphstore.NewMemStore()
	} else {
		g = graphstore.NewPostgresStore(pool)
	}
	f.store(cacheKey, g)
	return g
}

// CreateEntityExtractor constructs (or returns a cached) ner.Detector backed
// by provider.
func (f *Factory) CreateEntityExtractor(provider llm.Provider, cacheKey string) ner.Detector {
	if v, ok := f.cached(cacheKey); ok {
		return v.(ner.Detector)
	}
	d := ner.New(provider)
	f.store(cacheKey, d)
	return d
}

// CreateEmotionDetector constructs (or returns a cached) *emotion.CascadeDetector.
func (f *Factory) CreateEmotionDetector(provider llm.Provider, cacheKey string) *emotion.CascadeDetector {
	if v, ok := f.cached(cacheKey); ok {
		return v.(*emotion.CascadeDetector)
	}
	d := emotion.New(provider)
	f.store(cacheKey, d)
	return d
}

// CreateIntentRecognizer constructs (or returns a cached) *intent.Recognizer.
func (f *Factory) CreateIntentRecognizer(provider llm.Provider, entities ner.Detector, cacheKey string) *intent.Recognizer {
	if v, ok := f.cached(cacheKey); ok {
		return v.(*intent.Recognizer)
	}
	r := intent.New(provider, entities)
	f.store(cacheKey, r)
	return r
}

// CreateRetentionClassifier constructs (or returns a cached) *memstore.RetentionClassifier.
func (f *Factory) CreateRetentionClassifier(provider llm.Provider, cacheKey string) *memstore.RetentionClassifier {
	if v, ok := f.cached(cacheKey); ok {
		return v.(*memstore.RetentionClassifier)
	}
	c := memstore.NewRetentionClassifier(provider)
	f.store(cacheKey, c)
	return c
}

// CreateMemoryStore constructs (or returns a cached) *memstore.Store wired to
// vectors, cat and embedder, configured from cfg.Retention.
func (f *Factory) CreateMemoryStore(vectors *vectorstore.Store, cat catalog.Catalog, embedder embedding.Provider, cfg config.RetentionConfig, cacheKey string) (*memstore.Store, error) {
	if v, ok := f.cached(cacheKey); ok {
		return v.(*memstore.Store), nil
	}
	var opts []memstore.Option
	retention, err := retentionConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, memstore.WithRetentionConfig(retention))
	if cfg.DecayFactor > 0 {
		opts = append(opts, memstore.WithDecayFactor(cfg.DecayFactor))
	}
	s := memstore.New(vectors, cat, embedder, opts...)
	f.store(cacheKey, s)
	return s, nil
}

// retentionConfigFrom parses cfg's duration strings, falling back to
// memstore's defaults for any tier left empty.
func retentionConfigFrom(cfg config.RetentionConfig) (memstore.RetentionConfig, error) {
	out := memstore.DefaultRetentionConfig()
	if cfg.TemporaryTTL != "" {
		d, err := time.ParseDuration(cfg.TemporaryTTL)
		if err != nil {
			return memstore.RetentionConfig{}, fmt.Errorf("capability: retention.temporary_ttl: %w", err)
		}
		out.Temporary = d
	}
	if cfg.CasualChatTTL != "" {
		d, err := time.ParseDuration(cfg.CasualChatTTL)
		if err != nil {
			return memstore.RetentionConfig{}, fmt.Errorf("capability: retention.casual_chat_ttl: %w", err)
		}
		out.Casual = d
	}
	return out, nil
}
