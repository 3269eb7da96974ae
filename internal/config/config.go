// Package config provides the configuration schema, loader, hot-reload
// watcher, and provider registry for the knowlode memory engine.
package config

// Config is the root configuration structure for knowlode.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Store     StoreConfig     `yaml:"store"`
	Retention RetentionConfig `yaml:"retention"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// external transport. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anyllm").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "text-embedding-3-small").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// StoreConfig holds settings for the backing storage layer — the metadata
// catalog's Postgres backend and the vector index's dimensionality.
type StoreConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the catalog's
	// Postgres backend. Empty uses the in-memory catalog instead.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension used by the vector store.
	// Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// RetentionConfig carries the sweep windows for the memory store's retention
// tiers, as free-form duration strings (e.g. "168h", "24h") rather than
// time.Duration directly — YAML has no native duration syntax, and parsing
// happens once in internal/capability when the store is assembled. Left
// empty, a tier falls back to internal/store/catalog's TemporaryTTL/
// CasualChatTTL constants.
type RetentionConfig struct {
	TemporaryTTL  string  `yaml:"temporary_ttl"`
	CasualChatTTL string  `yaml:"casual_chat_ttl"`
	DecayFactor   float64 `yaml:"decay_factor"`
}

// RetrievalConfig tunes the hybrid retrieval pipeline's default behavior.
type RetrievalConfig struct {
	// DefaultStrategy selects which preset pipeline Router.Retrieve falls
	// back to when a query doesn't name one explicitly. Valid values:
	// "vector_only", "graph_only", "hybrid", "adaptive".
	DefaultStrategy string `yaml:"default_strategy"`

	// RerankLengthThreshold is validated on load but is not passed to the
	// semantic rerank stage, which escalates from its heuristic to an LM
	// permutation call above its own built-in threshold of 8 candidates.
	RerankLengthThreshold int `yaml:"rerank_length_threshold"`

	// MMRLambda is the relevance/diversity trade-off for the diversity
	// filter stage, in [0,1]. Higher favors relevance.
	MMRLambda float64 `yaml:"mmr_lambda"`
}
