package provider

import (
	"context"
	"fmt"
	"time"
)

// Retry defaults shared by every provider.
const (
	DefaultInitialDelay  = 2 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultTimeout       = 60 * time.Second
)

// retryPolicy retries a call with exponential backoff.
type retryPolicy struct {
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// withDefaults fills zero delay and backoff from the package defaults.
// maxRetries is kept as given; zero or less means a single attempt.
func (p retryPolicy) withDefaults() retryPolicy {
	if p.initialDelay == 0 {
		p.initialDelay = DefaultInitialDelay
	}
	if p.backoffFactor == 0 {
		p.backoffFactor = DefaultBackoffFactor
	}
	return p
}

// do runs fn until it succeeds, fails with a non-retryable error, the
// context ends, or retries are exhausted. A maxRetries of zero or less
// disables retrying.
func (p retryPolicy) do(ctx context.Context, fn func() error, retryable func(error) bool) error {
	delay := p.initialDelay
	maxRetries := max(p.maxRetries, 0)
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * p.backoffFactor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
