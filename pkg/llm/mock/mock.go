// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that callers send correct messages and
// to feed controlled responses without a live model backend. All fields are
// safe to set before calling any method; mutating them during a concurrent
// call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    GenerateResponse: llm.Response{Content: "Hello!"},
//	}
//	resp, err := p.Generate(ctx, messages, llm.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/knowlode/knowlode/pkg/llm"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	Messages []llm.Message
	Options  llm.Options
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and
// nil errors. Set the Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// GenerateResponse is returned by Generate.
	GenerateResponse llm.Response

	// GenerateErr, if non-nil, is returned as the error from Generate.
	GenerateErr error

	// StreamChunks is the sequence of strings emitted on the channel returned
	// by GenerateStream. All chunks are sent before the channel is closed.
	StreamChunks []string

	// StreamErr, if non-nil, is returned as the error from GenerateStream
	// instead of starting a channel.
	StreamErr error

	// TokenEstimate is returned by EstimateTokens.
	TokenEstimate int

	// Configured is returned by IsConfigured.
	Configured bool

	// --- Call records (read after test) ---

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall

	// StreamCalls records every invocation of GenerateStream in order.
	StreamCalls []GenerateCall
}

// Generate records the call and returns GenerateResponse, GenerateErr.
func (p *Provider) Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Messages: append([]llm.Message(nil), messages...), Options: opts})
	return p.GenerateResponse, p.GenerateErr
}

// GenerateStream records the call and returns a channel emitting StreamChunks.
// If StreamErr is set, it returns nil, StreamErr without opening a channel.
func (p *Provider) GenerateStream(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan string, error) {
	p.mu.Lock()
	if p.StreamErr != nil {
		err := p.StreamErr
		p.StreamCalls = append(p.StreamCalls, GenerateCall{Messages: append([]llm.Message(nil), messages...), Options: opts})
		p.mu.Unlock()
		return nil, err
	}
	chunks := append([]string(nil), p.StreamChunks...)
	p.StreamCalls = append(p.StreamCalls, GenerateCall{Messages: append([]llm.Message(nil), messages...), Options: opts})
	p.mu.Unlock()

	ch := make(chan string, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// EstimateTokens returns TokenEstimate.
func (p *Provider) EstimateTokens(text string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenEstimate
}

// IsConfigured returns Configured.
func (p *Provider) IsConfigured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Configured
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
	p.StreamCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
