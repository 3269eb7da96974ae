// Package llm defines the language-model transport interface consumed by the
// cascade inference engine, the NLP detectors, and the retrieval pipeline's
// semantic rerank stage.
//
// The core never depends on a concrete model backend. It only knows this
// interface; concrete providers live in sibling packages (openai, anyllm) and
// are wired in by internal/capability.
//
// Implementors must be safe for concurrent use. Channels returned by
// GenerateStream must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// Message is a single turn in a conversation passed to Generate/GenerateStream.
type Message struct {
	// Role is one of "system", "user", "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Options carries generation parameters. Zero values mean "use the provider
// default" for every field.
type Options struct {
	// Temperature controls output randomness. 0 typically requests greedy decoding.
	Temperature float64

	// MaxTokens caps the number of tokens the model may generate.
	MaxTokens int

	// TopP is nucleus-sampling mass. 0 means provider default.
	TopP float64

	// FrequencyPenalty discourages token repetition. 0 means no penalty.
	FrequencyPenalty float64

	// PresencePenalty discourages reusing any token already seen. 0 means no penalty.
	PresencePenalty float64
}

// Usage holds token accounting for a single Generate call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is returned by a blocking Generate call.
type Response struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage is token accounting for this request/response pair.
	Usage Usage

	// FinishReason explains why generation stopped ("stop", "length", ...).
	FinishReason string

	// Metadata carries provider-specific extras (model name, request id, ...).
	Metadata map[string]any
}

// Provider is the external LM Transport consumed by the core. Implementations
// must propagate context cancellation promptly.
type Provider interface {
	// Generate sends messages to the model and blocks for the full response.
	Generate(ctx context.Context, messages []Message, opts Options) (Response, error)

	// GenerateStream sends messages to the model and returns a channel of
	// incremental text chunks. The channel is closed when generation finishes
	// or ctx is cancelled. The channel carries text only: an error after the
	// stream starts is not reported on it, so callers should check ctx.Err()
	// after the channel closes.
	GenerateStream(ctx context.Context, messages []Message, opts Options) (<-chan string, error)

	// EstimateTokens is a cheap, synchronous token-count approximation used to
	// enforce context-window budgets before a request is sent.
	EstimateTokens(text string) int

	// IsConfigured reports whether the provider has the credentials/endpoint
	// it needs to serve requests.
	IsConfigured() bool
}
