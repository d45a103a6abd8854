package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts     = 4
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
)

// RetryConfig controls the backoff schedule for outbound calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the schedule used for all provider and RPC
// calls unless a caller overrides it.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// Permanent marks an error as non-retryable. Unsafe conditions (fund
// leak, expired quote, failed economic guarantee) must be wrapped with
// this so they are surfaced immediately instead of retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Retry runs fn with exponential backoff plus jitter, bounded by the
// config's attempt count and the context's deadline. The name identifies
// the logical dependency in logs.
func Retry(ctx context.Context, log *zap.Logger, name string, cfg RetryConfig, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialInterval
	eb.MaxInterval = cfg.MaxInterval
	eb.MaxElapsedTime = 0 // bounded by attempts and ctx, not wall clock

	attempt := 0
	op := func() error {
		attempt++
		err := fn()
		if err != nil && attempt < cfg.MaxAttempts {
			log.Warn("retryable call failed",
				zap.String("dependency", name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts-1)), ctx)
	return backoff.Retry(op, b)
}
