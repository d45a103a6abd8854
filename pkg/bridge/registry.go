package bridge

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapd/pkg/swaperr"
	"swapd/pkg/types"
)

// Recommended-quote scoring weights: value dominates, speed breaks the
// near-ties.
const (
	amountWeight = 0.7
	speedWeight  = 0.3
)

// Registry holds the registered bridge providers and aggregates quotes
// across them. Construct one at startup and pass it by reference;
// registration order is the deterministic tie-breaker for ranking.
type Registry struct {
	log *zap.Logger

	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:       log,
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. Duplicate registration overwrites the
// existing provider and keeps its original position in the order.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Unregister removes a provider by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		return
	}
	delete(r.providers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, swaperr.New(swaperr.CodeNotFound, "unknown provider %q", name)
	}
	return p, nil
}

// Names returns the provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) snapshot() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// Aggregate probes every registered provider's route support
// concurrently, fetches quotes from all eligible providers concurrently,
// ranks the results and picks a recommended quote. A provider failure is
// recorded in the per-provider results, never silently dropped; the call
// fails only when zero providers return a quote.
func (r *Registry) Aggregate(ctx context.Context, params types.QuoteParams) (*types.AggregatedQuotes, error) {
	providers := r.snapshot()
	if len(providers) == 0 {
		return nil, swaperr.New(swaperr.CodeProvider, "no bridge providers registered")
	}

	// Route-support probe. A provider that errors on the probe is
	// optimistically included; it may still reject at GetQuote.
	var probeMu sync.Mutex
	excluded := make(map[string]bool)

	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			ok, err := p.SupportsRoute(ctx, params)
			if err != nil {
				r.log.Warn("route support probe failed, including provider optimistically",
					zap.String("provider", p.Name()),
					zap.Error(err))
				return
			}
			if !ok {
				probeMu.Lock()
				excluded[p.Name()] = true
				probeMu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	type quoteResult struct {
		provider string
		quote    *types.BridgeQuote
		err      error
		noRoute  bool
	}

	results := make([]quoteResult, len(providers))
	for i, p := range providers {
		if excluded[p.Name()] {
			results[i] = quoteResult{provider: p.Name(), noRoute: true}
			continue
		}
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			quote, err := p.GetQuote(ctx, params)
			results[i] = quoteResult{provider: p.Name(), quote: quote, err: err}
		}(i, p)
	}
	wg.Wait()

	agg := &types.AggregatedQuotes{}
	for _, res := range results {
		switch {
		case res.noRoute:
			agg.Results = append(agg.Results, types.ProviderResult{
				Provider: res.provider,
				Outcome:  types.OutcomeNoRoute,
			})
		case res.err != nil:
			r.log.Warn("provider failed to quote",
				zap.String("provider", res.provider),
				zap.Error(res.err))
			agg.Results = append(agg.Results, types.ProviderResult{
				Provider: res.provider,
				Outcome:  types.OutcomeError,
				Error:    res.err.Error(),
			})
		default:
			agg.Results = append(agg.Results, types.ProviderResult{
				Provider: res.provider,
				Outcome:  types.OutcomeSuccess,
			})
			agg.Quotes = append(agg.Quotes, res.quote)
		}
	}

	if len(agg.Quotes) == 0 {
		return nil, swaperr.New(swaperr.CodeProvider, "no provider returned a quote for %s -> %s",
			params.SourceChain, params.DestChain)
	}

	agg.Quotes = r.RankQuotes(agg.Quotes)
	agg.Best = agg.Quotes[0]
	agg.Recommended = r.Recommend(agg.Quotes)
	return agg, nil
}

// netAmount is destination amount minus total destination-side fees.
func netAmount(q *types.BridgeQuote) decimal.Decimal {
	dest, err := decimal.NewFromString(q.DestAmount)
	if err != nil {
		return decimal.Zero
	}
	if q.DestFees != "" {
		if fees, err := decimal.NewFromString(q.DestFees); err == nil {
			dest = dest.Sub(fees)
		}
	}
	return dest
}

// RankQuotes orders quotes descending by net amount. Ties break by
// provider registration order, so the result is deterministic for a
// given quote set.
func (r *Registry) RankQuotes(quotes []*types.BridgeQuote) []*types.BridgeQuote {
	pos := make(map[string]int, len(r.order))
	r.mu.RLock()
	for i, name := range r.order {
		pos[name] = i
	}
	r.mu.RUnlock()

	ranked := make([]*types.BridgeQuote, len(quotes))
	copy(ranked, quotes)
	sort.SliceStable(ranked, func(i, j int) bool {
		ni, nj := netAmount(ranked[i]), netAmount(ranked[j])
		if !ni.Equal(nj) {
			return ni.GreaterThan(nj)
		}
		return pos[ranked[i].Provider] < pos[ranked[j].Provider]
	})
	return ranked
}

// Recommend picks the quote with the best weighted score:
// 70% normalized net amount + 30% normalized speed. Ties resolve to the
// net-amount-best quote, which is first in the ranked slice.
func (r *Registry) Recommend(ranked []*types.BridgeQuote) *types.BridgeQuote {
	if len(ranked) == 0 {
		return nil
	}
	if len(ranked) == 1 {
		return ranked[0]
	}

	maxNet := netAmount(ranked[0])
	maxDuration := 0
	for _, q := range ranked {
		if q.DurationSec > maxDuration {
			maxDuration = q.DurationSec
		}
	}

	best := ranked[0]
	bestScore := -1.0
	for _, q := range ranked {
		amountScore := 0.0
		if maxNet.IsPositive() {
			f, _ := netAmount(q).Div(maxNet).Float64()
			amountScore = f
		}
		speedScore := 0.0
		if maxDuration > 0 {
			speedScore = 1 - float64(q.DurationSec)/float64(maxDuration)
		}
		score := amountWeight*amountScore + speedWeight*speedScore
		if score > bestScore {
			bestScore = score
			best = q
		}
	}
	return best
}
