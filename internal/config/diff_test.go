package config_test

import (
	"testing"

	"github.com/knowlode/knowlode/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai"}, Embeddings: config.ProviderEntry{Name: "openai"}},
		Retention: config.RetentionConfig{TemporaryTTL: "168h", CasualChatTTL: "24h", DecayFactor: 0.1},
		Retrieval: config.RetrievalConfig{DefaultStrategy: "hybrid", RerankLengthThreshold: 20, MMRLambda: 0.5},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	d := config.Diff(cfg, cfg)

	if d.LogLevelChanged || d.LLMProviderChanged || d.EmbeddingsProviderChanged || d.RetentionChanged || d.RetrievalChanged {
		t.Fatalf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	updated := baseConfig()
	updated.Server.LogLevel = config.LogDebug

	d := config.Diff(old, updated)
	if !d.LogLevelChanged {
		t.Fatal("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Fatalf("got NewLogLevel %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.LLMProviderChanged || d.RetentionChanged {
		t.Fatalf("expected only the log level to change, got %+v", d)
	}
}

func TestDiff_LLMProviderChanged(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	updated := baseConfig()
	updated.Providers.LLM.Name = "anthropic"

	d := config.Diff(old, updated)
	if !d.LLMProviderChanged {
		t.Fatal("expected LLMProviderChanged=true")
	}
	if d.EmbeddingsProviderChanged {
		t.Fatal("expected EmbeddingsProviderChanged=false")
	}
}

func TestDiff_EmbeddingsProviderChanged(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	updated := baseConfig()
	updated.Providers.Embeddings.APIKey = "new-key"

	d := config.Diff(old, updated)
	if !d.EmbeddingsProviderChanged {
		t.Fatal("expected EmbeddingsProviderChanged=true")
	}
}

func TestDiff_RetentionChanged(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	updated := baseConfig()
	updated.Retention.DecayFactor = 0.2

	d := config.Diff(old, updated)
	if !d.RetentionChanged {
		t.Fatal("expected RetentionChanged=true")
	}
	if d.RetrievalChanged {
		t.Fatal("expected RetrievalChanged=false")
	}
}

func TestDiff_RetrievalChanged(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	updated := baseConfig()
	updated.Retrieval.DefaultStrategy = "adaptive"

	d := config.Diff(old, updated)
	if !d.RetrievalChanged {
		t.Fatal("expected RetrievalChanged=true")
	}
}

func TestDiff_MultipleFieldsChanged(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	updated := baseConfig()
	updated.Server.LogLevel = config.LogWarn
	updated.Retrieval.MMRLambda = 0.9

	d := config.Diff(old, updated)
	if !d.LogLevelChanged || !d.RetrievalChanged {
		t.Fatalf("expected both LogLevelChanged and RetrievalChanged, got %+v", d)
	}
	if d.LLMProviderChanged || d.EmbeddingsProviderChanged || d.RetentionChanged {
		t.Fatalf("expected no other fields to change, got %+v", d)
	}
}
