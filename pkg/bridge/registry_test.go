package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swapd/pkg/swaperr"
	"swapd/pkg/types"
)

// fakeProvider is a scriptable Provider for registry tests.
type fakeProvider struct {
	name     string
	noRoute  bool
	probeErr error
	quote    *types.BridgeQuote
	quoteErr error
	status   *types.ExecutionStatus
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) SupportsRoute(context.Context, types.QuoteParams) (bool, error) {
	return !f.noRoute, f.probeErr
}

func (f *fakeProvider) GetQuote(context.Context, types.QuoteParams) (*types.BridgeQuote, error) {
	return f.quote, f.quoteErr
}

func (f *fakeProvider) ValidateQuote(_ context.Context, quote *types.BridgeQuote) (*types.BridgeQuote, error) {
	return quote, nil
}

func (f *fakeProvider) BuildTransaction(context.Context, *types.BridgeQuote, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) GetStatus(context.Context, *types.Swap) (*types.ExecutionStatus, error) {
	return f.status, nil
}

func (f *fakeProvider) EstimateCosts(context.Context, *types.BridgeQuote) (*types.CostBreakdown, error) {
	return &types.CostBreakdown{}, nil
}

func (f *fakeProvider) Tokens(context.Context) ([]types.Token, error) {
	return nil, nil
}

func quoteFor(provider, destAmount, destFees string, durationSec int) *types.BridgeQuote {
	return &types.BridgeQuote{
		Provider:    provider,
		QuoteID:     provider + "-q",
		DestAmount:  destAmount,
		DestFees:    destFees,
		DurationSec: durationSec,
		ValidUntil:  time.Now().Add(2 * time.Minute),
	}
}

func testParams() types.QuoteParams {
	return types.QuoteParams{
		SourceChain: "solana",
		SourceToken: "USDC",
		Amount:      1_000_000,
		DestChain:   "ethereum",
		DestToken:   "USDC",
	}
}

func TestRegisterOverwriteKeepsOrder(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(&fakeProvider{name: "alpha"})
	r.Register(&fakeProvider{name: "beta"})
	r.Register(&fakeProvider{name: "alpha"}) // overwrite

	assert.Equal(t, []string{"alpha", "beta"}, r.Names())
}

func TestGetUnknownProvider(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	_, err := r.Get("nope")
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeNotFound))
}

func TestUnregister(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(&fakeProvider{name: "alpha"})
	r.Register(&fakeProvider{name: "beta"})
	r.Unregister("alpha")

	assert.Equal(t, []string{"beta"}, r.Names())
	_, err := r.Get("alpha")
	assert.Error(t, err)
}

func TestAggregateRanksByNetAmount(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	// Net amounts: alpha 950, beta 990, gamma 950 (ties with alpha).
	r.Register(&fakeProvider{name: "alpha", quote: quoteFor("alpha", "1000", "50", 120)})
	r.Register(&fakeProvider{name: "beta", quote: quoteFor("beta", "990", "", 120)})
	r.Register(&fakeProvider{name: "gamma", quote: quoteFor("gamma", "990", "40", 120)})

	agg, err := r.Aggregate(context.Background(), testParams())
	require.NoError(t, err)
	require.Len(t, agg.Quotes, 3)

	assert.Equal(t, "beta", agg.Quotes[0].Provider)
	// Equal net amounts resolve by registration order.
	assert.Equal(t, "alpha", agg.Quotes[1].Provider)
	assert.Equal(t, "gamma", agg.Quotes[2].Provider)
	assert.Equal(t, agg.Quotes[0], agg.Best)
}

func TestAggregateRecordsEveryProvider(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(&fakeProvider{name: "alpha", quote: quoteFor("alpha", "1000", "", 120)})
	r.Register(&fakeProvider{name: "beta", noRoute: true})
	r.Register(&fakeProvider{name: "gamma", quoteErr: errors.New("upstream 500")})

	agg, err := r.Aggregate(context.Background(), testParams())
	require.NoError(t, err)
	require.Len(t, agg.Quotes, 1)
	require.Len(t, agg.Results, 3)

	outcomes := map[string]types.ProviderOutcome{}
	for _, res := range agg.Results {
		outcomes[res.Provider] = res.Outcome
	}
	assert.Equal(t, types.OutcomeSuccess, outcomes["alpha"])
	assert.Equal(t, types.OutcomeNoRoute, outcomes["beta"])
	assert.Equal(t, types.OutcomeError, outcomes["gamma"])
}

func TestAggregateProbeFailureIsOptimistic(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(&fakeProvider{
		name:     "alpha",
		probeErr: errors.New("probe timeout"),
		quote:    quoteFor("alpha", "1000", "", 120),
	})

	agg, err := r.Aggregate(context.Background(), testParams())
	require.NoError(t, err)
	assert.Len(t, agg.Quotes, 1)
}

func TestAggregateFailsOnZeroQuotes(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(&fakeProvider{name: "alpha", quoteErr: errors.New("down")})
	r.Register(&fakeProvider{name: "beta", noRoute: true})

	_, err := r.Aggregate(context.Background(), testParams())
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeProvider))
}

func TestAggregateNoProviders(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	_, err := r.Aggregate(context.Background(), testParams())
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeProvider))
}

func TestRecommendWeighsSpeedAgainstAmount(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(&fakeProvider{name: "alpha"})
	r.Register(&fakeProvider{name: "beta"})

	// alpha nets slightly more but takes ten times longer; the weighted
	// score favors beta.
	slow := quoteFor("alpha", "1000", "", 600)
	fast := quoteFor("beta", "990", "", 60)

	ranked := r.RankQuotes([]*types.BridgeQuote{fast, slow})
	require.Equal(t, "alpha", ranked[0].Provider)

	recommended := r.Recommend(ranked)
	assert.Equal(t, "beta", recommended.Provider)
}

func TestRecommendSingleQuote(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	q := quoteFor("alpha", "1000", "", 120)

	assert.Equal(t, q, r.Recommend([]*types.BridgeQuote{q}))
	assert.Nil(t, r.Recommend(nil))
}
