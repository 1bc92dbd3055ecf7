package connection

import (
	"context"
	"time"

	"github.com/codej/codej/internal/backend"
)

// BackoffConfig controls retry behavior for remote operations.
type BackoffConfig struct {
	MaxAttempts int           // maximum number of attempts (default: 3)
	InitialWait time.Duration // wait before first retry (default: 500ms)
	MaxWait     time.Duration // maximum wait between retries (default: 30s)
	Multiplier  float64       // backoff multiplier (default: 2.0)
}

// DefaultBackoffConfig returns sensible defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
	}
}

// WithRetry executes fn, retrying transient failures with exponential
// backoff. Auth and missing-resource errors are returned immediately;
// only errors backend.IsRetryable accepts trigger another attempt.
func WithRetry[T any](ctx context.Context, cfg BackoffConfig, fn func() (T, error)) (T, error) {
	var zero T
	wait := cfg.InitialWait
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !backend.IsRetryable(err) || attempt == cfg.MaxAttempts {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if cfg.MaxWait > 0 && wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}
	return zero, lastErr
}
