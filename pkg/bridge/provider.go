package bridge

import (
	"context"

	"swapd/pkg/types"
)

// Provider is the uniform contract over heterogeneous bridge services.
// Every call is idempotent from the caller's perspective and safe to
// retry, except BuildTransaction, which may mint a new opaque order id
// on each call and must not be retried blindly.
type Provider interface {
	// Name returns the provider identifier used for registry keying and
	// error tagging.
	Name() string

	// SupportsRoute reports whether the provider can bridge the given
	// route. An error here does not exclude the provider; it is allowed
	// to reject later at GetQuote.
	SupportsRoute(ctx context.Context, params types.QuoteParams) (bool, error)

	// GetQuote fetches a quote for the route. The returned quote's
	// ValidUntil is in the future; callers must re-check before acting.
	GetQuote(ctx context.Context, params types.QuoteParams) (*types.BridgeQuote, error)

	// ValidateQuote re-quotes the same route so the caller can measure
	// drift against the original quote.
	ValidateQuote(ctx context.Context, quote *types.BridgeQuote) (*types.BridgeQuote, error)

	// BuildTransaction produces the provider's serialized unsigned
	// transaction for the quote. Not blindly retryable.
	BuildTransaction(ctx context.Context, quote *types.BridgeQuote, userWallet string) ([]byte, error)

	// GetStatus reports the bridging status of an executed swap.
	GetStatus(ctx context.Context, swap *types.Swap) (*types.ExecutionStatus, error)

	// EstimateCosts itemizes the sponsor-borne source-chain costs of
	// executing the quote.
	EstimateCosts(ctx context.Context, quote *types.BridgeQuote) (*types.CostBreakdown, error)

	// Tokens lists the tokens the provider can bridge.
	Tokens(ctx context.Context) ([]types.Token, error)
}
