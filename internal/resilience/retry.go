package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures an exponential backoff retry policy for a single
// outbound call.
type RetryConfig struct {
	// MaxAttempts caps the number of calls to fn, including the first.
	// Zero or negative means the package default of 3.
	MaxAttempts int

	// Multiplier is the exponential backoff factor applied after each
	// attempt. Zero means the package default of 0.5.
	Multiplier float64

	// MaxInterval caps the wait between attempts. Zero means the package
	// default of 10 seconds.
	MaxInterval time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultMultiplier  = 0.5
	defaultMaxInterval = 10 * time.Second
)

// Retry calls fn, retrying with exponential backoff on error. fn may call
// [backoff.Permanent] to stop retries immediately for a non-transient error.
// Retry stops early if ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = defaultMultiplier
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = defaultMaxInterval
	}

	eb := backoff.NewExponentialBackOff()
	eb.Multiplier = multiplier
	eb.MaxInterval = maxInterval
	eb.MaxElapsedTime = 0

	bo := backoff.WithMaxRetries(eb, uint64(maxAttempts-1))

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
