package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), zap.NewNop(), "dep", fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), zap.NewNop(), "dep", fastConfig(), func() error {
		attempts++
		return errors.New("always down")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	sentinel := errors.New("fee violation")
	attempts := 0
	err := Retry(context.Background(), zap.NewNop(), "dep", fastConfig(), func() error {
		attempts++
		return Permanent(sentinel)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, zap.NewNop(), "dep", fastConfig(), func() error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreakers(zap.NewNop())
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		err := b.Do("api:test", func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	// Breaker is open now: the function must not run.
	ran := false
	err := b.Do("api:test", func() error { ran = true; return nil })
	require.Error(t, err)
	assert.False(t, ran)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestBreakerKeysAreIndependent(t *testing.T) {
	b := NewBreakers(zap.NewNop())

	for i := 0; i < 5; i++ {
		_ = b.Do("api:down", func() error { return errors.New("boom") })
	}

	err := b.Do("api:up", func() error { return nil })
	assert.NoError(t, err)
}
