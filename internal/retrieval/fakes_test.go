package retrieval

import (
	"context"
	"errors"

	"github.com/knowlode/knowlode/internal/nlp/ner"
	"github.com/knowlode/knowlode/pkg/embedding"
	"github.com/knowlode/knowlode/pkg/llm"
)

// errBoom is a sentinel used across tests to simulate a collaborator failure.
var errBoom = errors.New("boom")

// ── Stub implementations (satisfy interfaces for the compiler) ────────────

// fakeEmbedder returns a fixed vector regardless of input text, unless
// failNext is set, in which case the next Embed call errors.
type fakeEmbedder struct {
	dim      int
	vector   []float32
	failNext bool
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (embedding.Result, error) {
	if f.failNext {
		f.failNext = false
		return embedding.Result{}, errors.New("fake embedder: forced failure")
	}
	v := f.vector
	if v == nil {
		v = make([]float32, f.dim)
		for i := range v {
			v[i] = 1
		}
	}
	return embedding.Result{Vector: v, Model: "fake", Dimension: len(v)}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Result, error) {
	out := make([]embedding.Result, len(texts))
	for i := range texts {
		r, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) ModelID() string { return "fake" }

// fakeEntityDetector returns a fixed entity list regardless of input text.
type fakeEntityDetector struct {
	names []string
	err   error
}

func (f *fakeEntityDetector) Extract(_ context.Context, _ string) ([]ner.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ner.Entity, 0, len(f.names))
	for _, n := range f.names {
		out = append(out, ner.Entity{Text: n, Type: "PERSON"})
	}
	return out, nil
}

// fakeLLM implements llm.Provider. configured controls IsConfigured; reply
// is returned verbatim from Generate.
type fakeLLM struct {
	configured bool
	reply      string
	err        error
}

func (f *fakeLLM) Generate(_ context.Context, _ []llm.Message, _ llm.Options) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply, FinishReason: "stop"}, nil
}

func (f *fakeLLM) GenerateStream(_ context.Context, _ []llm.Message, _ llm.Options) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func (f *fakeLLM) EstimateTokens(text string) int { return len(text) / 4 }
func (f *fakeLLM) IsConfigured() bool             { return f.configured }
