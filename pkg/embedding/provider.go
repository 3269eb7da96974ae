// Package embedding defines the embedding transport consumed by the memory
// store, the vector store's index-training path, and the retrieval
// pipeline's vector stage.
//
// The embedding function itself (text -> fixed-length real vector) is an
// external collaborator; this package only defines the interface the core
// depends on plus concrete provider adapters.
package embedding

import "context"

// Result is returned by Embed and each element of EmbedBatch.
type Result struct {
	// Vector is the embedding. Length always equals Dimensions() for a
	// successful embedding, and is nil (treated as the zero vector) on a
	// partial-batch failure.
	Vector []float32

	// Model is the provider-specific model identifier that produced Vector.
	Model string

	// Dimension is len(Vector) for a successful embedding.
	Dimension int

	// Usage carries optional token-accounting metadata; nil when the
	// provider does not report it.
	Usage *Usage
}

// Usage holds token accounting for an embedding call, when the provider reports it.
type Usage struct {
	PromptTokens int
	TotalTokens  int
}

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (Dimensions). Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the embedding for a single text string.
	Embed(ctx context.Context, text string) (Result, error)

	// EmbedBatch computes embeddings for texts in as few backend calls as
	// possible. The returned slice always has len(texts) entries in the same
	// order as the input. An empty input string or a per-item backend error
	// yields a zero-vector Result at that index rather than aborting the
	// whole batch; only a transport-level failure that prevents the call
	// from being attempted at all returns a non-nil error.
	EmbedBatch(ctx context.Context, texts []string) ([]Result, error)

	// Dimensions returns the fixed vector length produced by this provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier.
	ModelID() string
}
