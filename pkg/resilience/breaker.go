package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breakers holds one circuit breaker per logical dependency, keyed like
// "rpc:sendTransaction" or "api:allbridge". A persistently failing
// dependency is short-circuited instead of retried forever.
type Breakers struct {
	log *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakers creates an empty breaker registry.
func NewBreakers(log *zap.Logger) *Breakers {
	return &Breakers{
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *Breakers) get(key string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[key]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn("circuit breaker state change",
				zap.String("dependency", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	b.breakers[key] = cb
	return cb
}

// Do executes fn behind the breaker for key. When the breaker is open
// the call is rejected without touching the dependency.
func (b *Breakers) Do(key string, fn func() error) error {
	_, err := b.get(key).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("dependency %s unavailable: %w", key, err)
	}
	return err
}
