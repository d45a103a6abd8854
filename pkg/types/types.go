package types

import (
	"time"
)

// FeeToken identifies the denomination a user pays the sponsor fee in.
type FeeToken string

const (
	FeeTokenSOL  FeeToken = "SOL"
	FeeTokenUSDC FeeToken = "USDC"
)

// SwapStatus defines the lifecycle state of a swap
type SwapStatus string

const (
	StatusQuoted            SwapStatus = "quoted"
	StatusPreparing         SwapStatus = "preparing"
	StatusAwaitingSignature SwapStatus = "awaiting_signature"
	StatusSubmitted         SwapStatus = "submitted"
	StatusBridging          SwapStatus = "bridging"
	StatusCompleted         SwapStatus = "completed"
	StatusFailed            SwapStatus = "failed"
	StatusExpired           SwapStatus = "expired"
)

// IsTerminal returns true if no further status transitions are possible
func (s SwapStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// QuoteParams describes a requested swap route. Immutable per request.
type QuoteParams struct {
	SourceChain string `json:"source_chain"`
	SourceToken string `json:"source_token"` // mint address on the source chain
	Amount      uint64 `json:"amount"`       // smallest unit of the source token
	DestChain   string `json:"dest_chain"`
	DestToken   string `json:"dest_token"`
	DestWallet  string `json:"dest_wallet"`
	UserWallet  string `json:"user_wallet"` // source-chain wallet that signs
}

// CostBreakdown itemizes the sponsor-borne costs of a swap transaction.
// TotalSponsorCost is always the sum of the itemized sponsor-borne
// components; amounts the user pays directly are never included.
type CostBreakdown struct {
	GasLamports         uint64 `json:"gas_lamports"`
	PriorityFeeLamports uint64 `json:"priority_fee_lamports"`
	BridgeFeeLamports   uint64 `json:"bridge_fee_lamports"`
	TransferFeeLamports uint64 `json:"transfer_fee_lamports,omitempty"`
	RentLamports        uint64 `json:"rent_lamports,omitempty"`
	TotalSponsorCost    uint64 `json:"total_sponsor_cost"`
}

// Sum recomputes TotalSponsorCost from the itemized components.
func (c *CostBreakdown) Sum() uint64 {
	return c.GasLamports + c.PriorityFeeLamports + c.BridgeFeeLamports + c.RentLamports
}

// Normalize sets TotalSponsorCost to the sum of the itemized components.
func (c *CostBreakdown) Normalize() {
	c.TotalSponsorCost = c.Sum()
}

// UserFee is the fee a user pays the sponsor, in a chosen denomination.
type UserFee struct {
	Token    FeeToken `json:"token"`
	Amount   uint64   `json:"amount"`    // smallest unit of Token
	ValueUSD string   `json:"value_usd"` // normalized value at validation time
}

// BridgeQuote is a single provider's offer for a route.
type BridgeQuote struct {
	Provider     string         `json:"provider"`
	QuoteID      string         `json:"quote_id"`
	Params       QuoteParams    `json:"params"`
	SourceAmount uint64         `json:"source_amount"`
	DestAmount   string         `json:"dest_amount"` // smallest unit, provider-reported
	DestFees     string         `json:"dest_fees"`   // total fees in destination units
	DurationSec  int            `json:"duration_sec"`
	ValidUntil   time.Time      `json:"valid_until"`
	Route        string         `json:"route,omitempty"`
	Costs        *CostBreakdown `json:"costs,omitempty"`

	// Payload is the opaque provider-specific blob required to later
	// build a transaction for this quote. Never inspected outside the
	// owning provider.
	Payload []byte `json:"payload,omitempty"`
}

// Expired reports whether the quote's validity window has passed.
func (q *BridgeQuote) Expired(now time.Time) bool {
	return !q.ValidUntil.After(now)
}

// ProviderOutcome records what happened for one provider during quote
// aggregation. A failed provider is recorded here, never silently dropped.
type ProviderOutcome string

const (
	OutcomeSuccess ProviderOutcome = "success"
	OutcomeNoRoute ProviderOutcome = "no_route"
	OutcomeError   ProviderOutcome = "error"
)

// ProviderResult is the per-provider record in an aggregation round.
type ProviderResult struct {
	Provider string          `json:"provider"`
	Outcome  ProviderOutcome `json:"outcome"`
	Error    string          `json:"error,omitempty"`
}

// AggregatedQuotes is the result of querying all eligible providers.
type AggregatedQuotes struct {
	Quotes      []*BridgeQuote   `json:"quotes"`      // ranked, best first
	Best        *BridgeQuote     `json:"best"`        // highest net amount
	Recommended *BridgeQuote     `json:"recommended"` // value/speed weighted
	Results     []ProviderResult `json:"results"`
}

// PreparedSwap is the ephemeral output of prepare, held only in a
// short-TTL in-memory cache. It is not durable and must not be treated
// as committed state.
type PreparedSwap struct {
	SwapID      string         `json:"swap_id"`
	Quote       *BridgeQuote   `json:"quote"`
	UnsignedTx  []byte         `json:"unsigned_tx"`
	Fee         *UserFee       `json:"fee,omitempty"` // nil in direct (unsponsored) mode
	SponsorCost *CostBreakdown `json:"sponsor_cost"`
	Sponsored   bool           `json:"sponsored"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// Swap is the durable record of a swap, created only after the user
// supplies a signature.
type Swap struct {
	ID          string         `json:"id"`
	UserWallet  string         `json:"user_wallet"`
	Provider    string         `json:"provider"`
	QuoteID     string         `json:"quote_id"`
	Params      QuoteParams    `json:"params"`
	DestAmount  string         `json:"dest_amount"`
	Fee         *UserFee       `json:"fee,omitempty"`
	SponsorCost *CostBreakdown `json:"sponsor_cost,omitempty"`
	Status      SwapStatus     `json:"status"`
	SourceTx    string         `json:"source_tx,omitempty"`
	DestTx      string         `json:"dest_tx,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// BridgeStatus is the normalized provider-reported bridging state.
type BridgeStatus string

const (
	BridgePending    BridgeStatus = "pending"
	BridgeProcessing BridgeStatus = "processing"
	BridgeBridging   BridgeStatus = "bridging"
	BridgeCompleted  BridgeStatus = "completed"
	BridgeFailed     BridgeStatus = "failed"
	BridgeRefunded   BridgeStatus = "refunded"
)

// Terminal reports whether the provider considers the bridge finished.
func (b BridgeStatus) Terminal() bool {
	return b == BridgeCompleted || b == BridgeFailed || b == BridgeRefunded
}

// ExecutionStatus is a provider's report on an in-flight swap.
type ExecutionStatus struct {
	Status   BridgeStatus `json:"status"`
	SourceTx string       `json:"source_tx,omitempty"`
	DestTx   string       `json:"dest_tx,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Token describes a bridgeable token as reported by a provider.
type Token struct {
	Symbol   string `json:"symbol"`
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}
