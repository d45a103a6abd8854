package swap

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"swapd/pkg/bridge"
	"swapd/pkg/chainrpc"
	"swapd/pkg/fees"
	"swapd/pkg/swaperr"
	"swapd/pkg/txbuilder"
	"swapd/pkg/txcodec"
	"swapd/pkg/types"
)

// Options are the orchestrator's tunables.
type Options struct {
	VolatilityBuffer   float64
	MaxDriftPercent    float64
	PendingTTL         time.Duration
	MonitorInterval    time.Duration
	MonitorMaxAttempts int
}

// Orchestrator drives the swap lifecycle: quote, prepare, execute,
// monitor. It exclusively owns the pending-swap cache and the active
// monitor set; durable records belong to the repository once created.
type Orchestrator struct {
	registry  *bridge.Registry
	chain     chainrpc.Client
	builder   *txbuilder.Builder
	calc      *fees.Calculator
	validator *fees.Validator
	repo      Repository
	log       *zap.Logger

	volatilityBuffer   float64
	maxDriftPercent    float64
	pendingTTL         time.Duration
	monitorInterval    time.Duration
	monitorMaxAttempts int

	pending  *pendingCache
	monitors *monitorSet
}

// NewOrchestrator wires the engine together. Construct once at startup
// and pass by reference; the pending cache and monitor set are
// single-process state.
func NewOrchestrator(
	registry *bridge.Registry,
	chain chainrpc.Client,
	builder *txbuilder.Builder,
	calc *fees.Calculator,
	validator *fees.Validator,
	repo Repository,
	opts Options,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:           registry,
		chain:              chain,
		builder:            builder,
		calc:               calc,
		validator:          validator,
		repo:               repo,
		log:                log,
		volatilityBuffer:   opts.VolatilityBuffer,
		maxDriftPercent:    opts.MaxDriftPercent,
		pendingTTL:         opts.PendingTTL,
		monitorInterval:    opts.MonitorInterval,
		monitorMaxAttempts: opts.MonitorMaxAttempts,
		pending:            newPendingCache(),
		monitors:           newMonitorSet(),
	}
}

// GetQuotes aggregates quotes from all eligible providers.
func (o *Orchestrator) GetQuotes(ctx context.Context, params types.QuoteParams) (*types.AggregatedQuotes, error) {
	return o.registry.Aggregate(ctx, params)
}

// PrepareSwap validates a quote, builds the transaction for it, and
// caches the unsigned result under a generated swap id. Nothing is
// written to durable storage here; the pending entry simply expires if
// the user never signs.
func (o *Orchestrator) PrepareSwap(ctx context.Context, quote *types.BridgeQuote, userWallet string, feeToken types.FeeToken) (*types.PreparedSwap, error) {
	provider, err := o.registry.Get(quote.Provider)
	if err != nil {
		return nil, err
	}

	user, err := solana.PublicKeyFromBase58(userWallet)
	if err != nil {
		return nil, swaperr.New(swaperr.CodeValidation, "invalid user wallet: %v", err)
	}

	if quote.Expired(time.Now()) {
		return nil, swaperr.New(swaperr.CodeQuoteExpired, "quote %s expired at %s", quote.QuoteID, quote.ValidUntil)
	}

	// Re-quote and bound the drift before committing to the quoted
	// amounts.
	fresh, err := provider.ValidateQuote(ctx, quote)
	if err != nil {
		return nil, err
	}
	drift, exceeded, err := fees.DriftExceeded(quote.DestAmount, fresh.DestAmount, o.maxDriftPercent)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeValidation, err, "cannot compare quoted amounts")
	}
	if exceeded {
		return nil, swaperr.New(swaperr.CodeQuoteDrift,
			"quote drifted by %s (max %.2f%% of %s); request a fresh quote",
			drift, o.maxDriftPercent, quote.DestAmount)
	}

	costs, err := provider.EstimateCosts(ctx, quote)
	if err != nil {
		return nil, err
	}

	providerTx, err := provider.BuildTransaction(ctx, quote, userWallet)
	if err != nil {
		return nil, err
	}

	var prepared *types.PreparedSwap
	if feeToken == types.FeeTokenSOL {
		prepared, err = o.prepareDirect(ctx, quote, providerTx, user, costs)
	} else {
		prepared, err = o.prepareSponsored(ctx, quote, providerTx, user, feeToken, costs)
	}
	if err != nil {
		return nil, err
	}

	prepared.SwapID = uuid.NewString()
	prepared.Quote = quote
	prepared.ExpiresAt = time.Now().Add(o.pendingTTL)
	o.pending.Put(prepared)

	o.log.Info("swap prepared",
		zap.String("swap_id", prepared.SwapID),
		zap.String("provider", quote.Provider),
		zap.Bool("sponsored", prepared.Sponsored))
	return prepared, nil
}

// prepareDirect is the native-fee path: the user pays source-chain
// costs directly. A provider transaction already built around the user
// as fee payer only needs a fresh recency token; anything else is
// rebuilt with the user paying.
func (o *Orchestrator) prepareDirect(ctx context.Context, quote *types.BridgeQuote, providerTx []byte, user solana.PublicKey, costs *types.CostBreakdown) (*types.PreparedSwap, error) {
	parsed, err := txbuilder.DecodeTransaction(providerTx)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "provider transaction is malformed")
	}

	var raw []byte
	if len(parsed.Message.AccountKeys) > 0 && parsed.Message.AccountKeys[0].Equals(user) {
		raw, err = o.builder.ReplaceBlockhash(ctx, providerTx)
	} else {
		var built *txbuilder.BuildResult
		built, err = o.builder.BuildDirect(ctx, providerTx, user)
		if built != nil {
			raw = built.Raw
		}
	}
	if err != nil {
		return nil, err
	}
	if err := txcodec.CheckSize(raw); err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "transaction too large")
	}
	if err := o.builder.Simulate(ctx, raw); err != nil {
		return nil, err
	}

	return &types.PreparedSwap{
		UnsignedTx:  raw,
		SponsorCost: costs,
		Sponsored:   false,
	}, nil
}

// prepareSponsored is the fee-token path: costs are adjusted for the
// sponsor-side signature, the minimum fee is computed and validated,
// and the fee transfer is injected ahead of the bridge instructions.
func (o *Orchestrator) prepareSponsored(ctx context.Context, quote *types.BridgeQuote, providerTx []byte, user solana.PublicKey, feeToken types.FeeToken, costs *types.CostBreakdown) (*types.PreparedSwap, error) {
	// The rebuilt transaction carries one extra signature (the sponsor)
	// on top of the provider's required set.
	if err := txbuilder.AdjustCostsForSignatures(costs, providerTx, 1); err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "provider transaction is malformed")
	}

	rent, err := o.builder.EstimateFeeRent(ctx, feeToken)
	if err != nil {
		return nil, err
	}
	costs.RentLamports = rent
	costs.Normalize()

	minimum, err := o.calc.MinimumFee(ctx, costs, o.volatilityBuffer)
	if err != nil {
		return nil, err
	}
	fee, err := minimum.ByToken(feeToken)
	if err != nil {
		return nil, swaperr.New(swaperr.CodeValidation, "%v", err)
	}

	if err := o.validator.ValidateEconomics(ctx, &fee, costs, quote, o.volatilityBuffer); err != nil {
		return nil, err
	}
	if err := o.validateUserBalances(ctx, quote, user, &fee); err != nil {
		return nil, err
	}

	built, err := o.builder.BuildSponsored(ctx, providerTx, user, &fee, 0)
	if err != nil {
		return nil, err
	}

	if err := o.validator.ValidateNoFundLeak(ctx, &fee, costs); err != nil {
		return nil, err
	}
	decoded, err := txbuilder.DecodedInstructions(built.Raw)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.CodeTxValidation, err, "cannot decode rebuilt transaction")
	}
	if err := o.validator.ValidateShape(decoded); err != nil {
		return nil, err
	}
	if err := o.builder.Simulate(ctx, built.Raw); err != nil {
		return nil, err
	}

	return &types.PreparedSwap{
		UnsignedTx:  built.Raw,
		Fee:         &fee,
		SponsorCost: costs,
		Sponsored:   true,
	}, nil
}

// validateUserBalances checks the user can fund the swap amount and the
// fee before any transaction is shown for signature. When the fee is
// drawn from the same account as the swap amount, both are counted
// against one balance.
func (o *Orchestrator) validateUserBalances(ctx context.Context, quote *types.BridgeQuote, user solana.PublicKey, fee *types.UserFee) error {
	feeCounted := false

	if isNativeSource(quote.Params.SourceToken) {
		balance, err := o.chain.GetBalance(ctx, user)
		if err != nil {
			return err
		}
		feeInSOL := uint64(0)
		if fee.Token == types.FeeTokenSOL {
			feeInSOL = fee.Amount
			feeCounted = true
		}
		if err := o.validator.ValidateBalance(balance, quote.SourceAmount, feeInSOL, 0); err != nil {
			return err
		}
	} else if mint, err := solana.PublicKeyFromBase58(quote.Params.SourceToken); err == nil {
		// The source token is a concrete mint; symbolic asset ids are
		// left to simulation.
		sourceATA, _, err := solana.FindAssociatedTokenAddress(user, mint)
		if err != nil {
			return err
		}
		balance, err := o.chain.GetTokenBalance(ctx, sourceATA)
		if err != nil {
			return swaperr.Wrap(swaperr.CodeInsufficientBalance, err, "cannot read source token balance")
		}
		feeInToken := uint64(0)
		if fee.Token == types.FeeTokenUSDC && mint.Equals(o.builder.USDCMint()) {
			feeInToken = fee.Amount
			feeCounted = true
		}
		if err := o.validator.ValidateBalance(balance, quote.SourceAmount, feeInToken, 0); err != nil {
			return err
		}
	}

	if fee.Token == types.FeeTokenUSDC && !feeCounted {
		userATA, _, err := solana.FindAssociatedTokenAddress(user, o.builder.USDCMint())
		if err != nil {
			return err
		}
		balance, err := o.chain.GetTokenBalance(ctx, userATA)
		if err != nil {
			return swaperr.Wrap(swaperr.CodeInsufficientBalance, err, "cannot read fee token balance")
		}
		if err := o.validator.ValidateBalance(balance, 0, fee.Amount, 0); err != nil {
			return err
		}
	}
	return nil
}

func isNativeSource(token string) bool {
	return token == "So11111111111111111111111111111111111111112" || strings.EqualFold(token, "SOL")
}

// ExecuteSwap consumes a pending entry, re-validates the signed bytes,
// creates the durable record, submits to the source chain, and starts
// the asynchronous monitor. A missing or expired id returns not-found,
// which is the expected outcome for duplicate or late confirmations.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, swapID, signedTxBase64 string) (*types.Swap, error) {
	entry, ok := o.pending.Take(swapID)
	if !ok {
		return nil, swaperr.New(swaperr.CodeNotFound, "swap %q not found or expired", swapID)
	}

	raw, err := base64.StdEncoding.DecodeString(signedTxBase64)
	if err != nil {
		return nil, swaperr.New(swaperr.CodeValidation, "signed transaction is not valid base64: %v", err)
	}

	if entry.Sponsored {
		sponsor := o.builder.Sponsor()
		if err := o.builder.ValidateNoLeak(raw, &sponsor); err != nil {
			return nil, err
		}
	}

	record := &types.Swap{
		ID:          entry.SwapID,
		UserWallet:  entry.Quote.Params.UserWallet,
		Provider:    entry.Quote.Provider,
		QuoteID:     entry.Quote.QuoteID,
		Params:      entry.Quote.Params,
		DestAmount:  entry.Quote.DestAmount,
		Fee:         entry.Fee,
		SponsorCost: entry.SponsorCost,
		Status:      types.StatusAwaitingSignature,
	}
	swap, err := o.repo.Create(ctx, record)
	if err != nil {
		return nil, err
	}

	sig, err := o.chain.SendRawTransaction(ctx, raw)
	if err != nil {
		failed, updateErr := o.repo.UpdateStatus(ctx, swap.ID, types.StatusFailed, UpdateExtra{Error: err.Error()})
		if updateErr != nil {
			o.log.Error("failed to record submission failure",
				zap.String("swap_id", swap.ID),
				zap.Error(updateErr))
			return nil, err
		}
		return failed, err
	}

	swap, err = o.repo.UpdateStatus(ctx, swap.ID, types.StatusSubmitted, UpdateExtra{SourceTx: sig.String()})
	if err != nil {
		return nil, err
	}

	provider, perr := o.registry.Get(swap.Provider)
	if perr == nil {
		if notifier, ok := provider.(bridge.DepositNotifier); ok {
			if err := notifier.NotifyDeposit(ctx, swap.QuoteID, sig.String()); err != nil {
				o.log.Warn("deposit notification failed",
					zap.String("swap_id", swap.ID),
					zap.Error(err))
			}
		}
		o.StartMonitoring(swap, provider)
	}

	o.log.Info("swap submitted",
		zap.String("swap_id", swap.ID),
		zap.String("signature", sig.String()))
	return swap, nil
}

// StartMonitoring launches the status polling loop for a swap. At most
// one monitor runs per swap id; a second start is a no-op.
func (o *Orchestrator) StartMonitoring(swap *types.Swap, provider bridge.Provider) {
	stop, ok := o.monitors.add(swap.ID)
	if !ok {
		return
	}
	o.monitors.wg.Add(1)
	go o.runMonitor(swap, provider, stop)
}

// StopMonitoring cancels the monitor for a swap id. Calling it for a
// swap with no active monitor is a no-op.
func (o *Orchestrator) StopMonitoring(swapID string) {
	o.monitors.stop(swapID)
}

// Shutdown stops every monitor and waits for them to exit.
func (o *Orchestrator) Shutdown() {
	o.monitors.stopAll()
}

// GetStatus returns the durable record, refreshed by a one-shot
// provider fetch when no monitor is live (for example after a restart),
// so a lost polling loop never strands a swap in a stale state.
func (o *Orchestrator) GetStatus(ctx context.Context, swapID string) (*types.Swap, error) {
	swap, err := o.repo.FindByID(ctx, swapID)
	if err != nil {
		return nil, err
	}

	if o.monitors.active(swapID) || swap.Status.IsTerminal() {
		return swap, nil
	}

	provider, err := o.registry.Get(swap.Provider)
	if err != nil {
		return swap, nil
	}
	status, err := provider.GetStatus(ctx, swap)
	if err != nil {
		o.log.Warn("one-shot status fetch failed",
			zap.String("swap_id", swapID),
			zap.Error(err))
		return swap, nil
	}

	return o.applyExecutionStatus(swap, status)
}

// ListSwaps returns a user's swap history, newest first.
func (o *Orchestrator) ListSwaps(ctx context.Context, wallet string, limit int) ([]*types.Swap, error) {
	return o.repo.FindByUser(ctx, wallet, limit)
}

// PendingCount reports the number of live prepared swaps.
func (o *Orchestrator) PendingCount() int {
	return o.pending.Len()
}
