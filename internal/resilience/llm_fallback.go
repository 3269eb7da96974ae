package resilience

import (
	"context"

	"github.com/knowlode/knowlode/pkg/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// multiple LM transports (for example a fast tier backed by pkg/llm/openai in
// front of a strong tier backed by pkg/llm/anyllm). Each backend has its own
// circuit breaker; when the primary fails or its breaker is open, the next
// healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LM transport as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Generate sends messages to the first healthy transport and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (llm.Response, error) {
		return p.Generate(ctx, messages, opts)
	})
}

// GenerateStream sends messages to the first healthy transport and returns a
// streaming text channel. Only the initial connection attempt is covered by
// failover; once a stream is established, mid-stream errors are the caller's
// responsibility.
func (f *LLMFallback) GenerateStream(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan string, error) {
		return p.GenerateStream(ctx, messages, opts)
	})
}

// EstimateTokens delegates to the first entry (the primary). Token estimation
// is local, synchronous math, so it does not participate in failover.
func (f *LLMFallback) EstimateTokens(text string) int {
	if len(f.group.entries) == 0 {
		return 0
	}
	return f.group.entries[0].value.EstimateTokens(text)
}

// IsConfigured reports whether at least one entry in the group is configured.
func (f *LLMFallback) IsConfigured() bool {
	for i := range f.group.entries {
		if f.group.entries[i].value.IsConfigured() {
			return true
		}
	}
	return false
}
