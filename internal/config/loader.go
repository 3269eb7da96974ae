package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "anyllm"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Embeddings ↔ store dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Store.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but store.embedding_dimensions is not set; the vector store will reject inserts until it is")
	}

	// Retention durations
	if cfg.Retention.TemporaryTTL != "" {
		if _, err := time.ParseDuration(cfg.Retention.TemporaryTTL); err != nil {
			errs = append(errs, fmt.Errorf("retention.temporary_ttl %q: %w", cfg.Retention.TemporaryTTL, err))
		}
	}
	if cfg.Retention.CasualChatTTL != "" {
		if _, err := time.ParseDuration(cfg.Retention.CasualChatTTL); err != nil {
			errs = append(errs, fmt.Errorf("retention.casual_chat_ttl %q: %w", cfg.Retention.CasualChatTTL, err))
		}
	}
	if cfg.Retention.DecayFactor != 0 && (cfg.Retention.DecayFactor <= 0 || cfg.Retention.DecayFactor > 1) {
		errs = append(errs, fmt.Errorf("retention.decay_factor %.4f is out of range (0, 1]", cfg.Retention.DecayFactor))
	}

	// Retrieval
	if cfg.Retrieval.DefaultStrategy != "" && !validStrategies[cfg.Retrieval.DefaultStrategy] {
		errs = append(errs, fmt.Errorf("retrieval.default_strategy %q is invalid; valid values: vector_only, graph_only, hybrid, adaptive", cfg.Retrieval.DefaultStrategy))
	}
	if cfg.Retrieval.MMRLambda != 0 && (cfg.Retrieval.MMRLambda < 0 || cfg.Retrieval.MMRLambda > 1) {
		errs = append(errs, fmt.Errorf("retrieval.mmr_lambda %.4f is out of range [0, 1]", cfg.Retrieval.MMRLambda))
	}
	if cfg.Retrieval.RerankLengthThreshold < 0 {
		errs = append(errs, fmt.Errorf("retrieval.rerank_length_threshold %d must be non-negative", cfg.Retrieval.RerankLengthThreshold))
	}

	return errors.Join(errs...)
}

var validStrategies = map[string]bool{
	"vector_only": true,
	"graph_only":  true,
	"hybrid":      true,
	"adaptive":    true,
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
