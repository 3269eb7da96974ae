package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	LLMProviderChanged        bool
	EmbeddingsProviderChanged bool

	RetentionChanged bool
	RetrievalChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart — a provider
// name change still requires rebuilding that provider through the capability
// factory, but doesn't require a process restart the way a listen_addr
// change would.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !reflect.DeepEqual(old.Providers.LLM, new.Providers.LLM) {
		d.LLMProviderChanged = true
	}
	if !reflect.DeepEqual(old.Providers.Embeddings, new.Providers.Embeddings) {
		d.EmbeddingsProviderChanged = true
	}
	if old.Retention != new.Retention {
		d.RetentionChanged = true
	}
	if old.Retrieval != new.Retrieval {
		d.RetrievalChanged = true
	}

	return d
}
