package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"swapd/pkg/chainrpc"
	"swapd/pkg/swaperr"
)

// Broad sanity band for the reference price. A value outside this range
// is treated as implausible regardless of what the feed says.
var (
	minPlausiblePrice = decimal.NewFromFloat(0.01)
	maxPlausiblePrice = decimal.NewFromInt(100000)
)

// Oracle serves a cached reference price (native asset / USD) read from
// an on-chain feed. Callers must never proceed with fee computation
// when Price returns an error.
type Oracle struct {
	chain  chainrpc.Client
	feed   solana.PublicKey
	ttl    time.Duration
	maxAge time.Duration
	log    *zap.Logger
	now    func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	cached    decimal.Decimal
	fetchedAt time.Time
}

// New creates an Oracle for the given feed account.
func New(chain chainrpc.Client, feed solana.PublicKey, ttl, maxAge time.Duration, log *zap.Logger) *Oracle {
	return &Oracle{
		chain:  chain,
		feed:   feed,
		ttl:    ttl,
		maxAge: maxAge,
		log:    log,
		now:    time.Now,
	}
}

// Price returns the cached reference price, refreshing it when stale.
// On refresh failure a stale cached value is served as a last-resort
// fallback; with no cache at all the call fails.
func (o *Oracle) Price(ctx context.Context) (decimal.Decimal, error) {
	o.mu.RLock()
	cached, fetchedAt := o.cached, o.fetchedAt
	o.mu.RUnlock()

	now := o.now()
	if !fetchedAt.IsZero() && now.Sub(fetchedAt) < o.ttl {
		return cached, nil
	}

	// Concurrent callers observing a stale cache share one in-flight
	// fetch instead of issuing parallel refreshes.
	v, err, _ := o.group.Do("refresh", func() (interface{}, error) {
		return o.fetch(ctx)
	})
	if err != nil {
		if !fetchedAt.IsZero() {
			o.log.Warn("price refresh failed, serving stale cached value",
				zap.Time("fetched_at", fetchedAt),
				zap.Duration("age", now.Sub(fetchedAt)),
				zap.Error(err))
			return cached, nil
		}
		return decimal.Zero, swaperr.Wrap(swaperr.CodeOracleUnavailable, err,
			"reference price unavailable and no cached value exists")
	}

	price := v.(decimal.Decimal)
	o.mu.Lock()
	o.cached = price
	o.fetchedAt = o.now()
	o.mu.Unlock()

	return price, nil
}

// fetch reads and validates the on-chain feed.
func (o *Oracle) fetch(ctx context.Context) (decimal.Decimal, error) {
	data, err := o.chain.GetAccountData(ctx, o.feed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read feed account: %w", err)
	}

	feed, err := DecodeFeed(data)
	if err != nil {
		return decimal.Zero, err
	}

	// A too-old on-chain value is a fetch failure, not a valid price.
	age := o.now().Sub(feed.PublishedAt)
	if age > o.maxAge {
		return decimal.Zero, fmt.Errorf("feed publication is %s old, max %s", age, o.maxAge)
	}

	if feed.Price.LessThan(minPlausiblePrice) || feed.Price.GreaterThan(maxPlausiblePrice) {
		return decimal.Zero, fmt.Errorf("feed price %s outside plausible range [%s, %s]",
			feed.Price, minPlausiblePrice, maxPlausiblePrice)
	}

	return feed.Price, nil
}

// CachedPrice returns the current cached value without refreshing, for
// validators that must read the same price the calculator used.
func (o *Oracle) CachedPrice() (decimal.Decimal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cached, !o.fetchedAt.IsZero()
}
