// Package openai provides an embedding.Provider backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/knowlode/knowlode/pkg/embedding"
)

// DefaultModel is the default OpenAI embeddings model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

var _ embedding.Provider = (*Provider)(nil)

// Provider implements embedding.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for New.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option { return func(c *config) { c.organization = org } }

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// New constructs a new OpenAI-backed embedding.Provider.
// If model is empty, DefaultModel is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(ctx context.Context, text string) (embedding.Result, error) {
	if text == "" {
		return embedding.Result{Model: p.model, Dimension: p.Dimensions()}, nil
	}

	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return embedding.Result{}, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return embedding.Result{}, fmt.Errorf("openai embeddings: empty response")
	}

	vec := float64ToFloat32(resp.Data[0].Embedding)
	return embedding.Result{
		Vector:    vec,
		Model:     p.model,
		Dimension: len(vec),
		Usage: &embedding.Usage{
			PromptTokens: int(resp.Usage.PromptTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// EmbedBatch implements embedding.Provider.
// Empty strings and any per-item backend failure degrade to a zero vector at
// that index rather than failing the whole batch.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Result, error) {
	results := make([]embedding.Result, len(texts))
	for i := range results {
		results[i] = embedding.Result{Model: p.model, Dimension: p.Dimensions()}
	}

	var nonEmpty []string
	indices := make([]int, 0, len(texts))
	for i, t := range texts {
		if t == "" {
			continue
		}
		nonEmpty = append(nonEmpty, t)
		indices = append(indices, i)
	}
	if len(nonEmpty) == 0 {
		return results, nil
	}

	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: nonEmpty},
	})
	if err != nil {
		// Transport-level failure: every non-empty slot stays a zero vector.
		return results, nil
	}

	for _, e := range resp.Data {
		if int(e.Index) >= len(indices) {
			continue
		}
		origIdx := indices[e.Index]
		vec := float64ToFloat32(e.Embedding)
		results[origIdx] = embedding.Result{
			Vector:    vec,
			Model:     p.model,
			Dimension: len(vec),
		}
	}
	return results, nil
}

// Dimensions implements embedding.Provider.
func (p *Provider) Dimensions() int {
	return modelDimensions(p.model)
}

// ModelID implements embedding.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

func modelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"):
		return 1536
	case strings.Contains(lower, "text-embedding-ada-002"):
		return 1536
	default:
		return 1536
	}
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
