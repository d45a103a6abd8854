package fees

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swapd/pkg/swaperr"
	"swapd/pkg/types"
)

func testValidator(t *testing.T) *Validator {
	t.Helper()
	return NewValidator(NewCalculator(testOracle(t), 0), 10.0, zap.NewNop())
}

func liveQuote() *types.BridgeQuote {
	return &types.BridgeQuote{
		Provider:   "test",
		QuoteID:    "q-1",
		DestAmount: "985",
		ValidUntil: time.Now().Add(5 * time.Minute),
	}
}

func TestValidateEconomicsPasses(t *testing.T) {
	v := testValidator(t)
	costs := &types.CostBreakdown{TotalSponsorCost: 15000}
	fee := &types.UserFee{Token: types.FeeTokenUSDC, Amount: 2588}

	err := v.ValidateEconomics(context.Background(), fee, costs, liveQuote(), 0.15)
	assert.NoError(t, err)
}

func TestValidateEconomicsRejectsUndersizedFee(t *testing.T) {
	v := testValidator(t)
	costs := &types.CostBreakdown{TotalSponsorCost: 15000}
	fee := &types.UserFee{Token: types.FeeTokenUSDC, Amount: 2000}

	err := v.ValidateEconomics(context.Background(), fee, costs, liveQuote(), 0.15)
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeFeeViolation))
	// Both the coverage and the minimum-fee checks trip; neither
	// short-circuits the other.
	assert.Contains(t, err.Error(), "does not cover sponsor cost")
	assert.Contains(t, err.Error(), "below minimum")
}

func TestValidateEconomicsRejectsExpiredQuote(t *testing.T) {
	v := testValidator(t)
	costs := &types.CostBreakdown{TotalSponsorCost: 15000}
	fee := &types.UserFee{Token: types.FeeTokenUSDC, Amount: 2588}

	quote := liveQuote()
	quote.ValidUntil = time.Now().Add(-time.Minute)

	err := v.ValidateEconomics(context.Background(), fee, costs, quote, 0.15)
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeFeeViolation))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateEconomicsRejectsExcessiveSponsorCost(t *testing.T) {
	v := testValidator(t)
	// 0.1 SOL of sponsor cost is $15, above the $10 ceiling.
	costs := &types.CostBreakdown{TotalSponsorCost: 100_000_000}
	fee := &types.UserFee{Token: types.FeeTokenSOL, Amount: 200_000_000}

	err := v.ValidateEconomics(context.Background(), fee, costs, liveQuote(), 0.15)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds absolute ceiling")
}

func TestValidateBalance(t *testing.T) {
	v := testValidator(t)

	assert.NoError(t, v.ValidateBalance(150, 100, 40, 10))

	err := v.ValidateBalance(100, 100, 40, 10)
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeInsufficientBalance))
	assert.Contains(t, err.Error(), "short 50")
}

func TestValidateNoFundLeak(t *testing.T) {
	v := testValidator(t)
	ctx := context.Background()
	costs := &types.CostBreakdown{TotalSponsorCost: 15000} // $0.00225

	// Fee exactly covering the cost is acceptable.
	assert.NoError(t, v.ValidateNoFundLeak(ctx, &types.UserFee{Token: types.FeeTokenUSDC, Amount: 2250}, costs))

	err := v.ValidateNoFundLeak(ctx, &types.UserFee{Token: types.FeeTokenUSDC, Amount: 2249}, costs)
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeFeeViolation))
	assert.Contains(t, err.Error(), "FUND LEAK BLOCKED")
}

func TestValidateShape(t *testing.T) {
	v := testValidator(t)
	fee := DecodedInstruction{ProgramID: solana.SystemProgramID, Data: []byte{1}}
	bridge := DecodedInstruction{ProgramID: solana.NewWallet().PublicKey(), Data: []byte{2}}

	assert.NoError(t, v.ValidateShape([]DecodedInstruction{fee, bridge}))

	err := v.ValidateShape([]DecodedInstruction{fee})
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeTxValidation))

	err = v.ValidateShape([]DecodedInstruction{bridge, fee})
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeTxValidation))

	// Duplicates warn but do not fail.
	assert.NoError(t, v.ValidateShape([]DecodedInstruction{fee, bridge, bridge}))
}

func TestIsFeeTransferProgram(t *testing.T) {
	assert.True(t, IsFeeTransferProgram(solana.SystemProgramID))
	assert.True(t, IsFeeTransferProgram(solana.TokenProgramID))
	assert.True(t, IsFeeTransferProgram(solana.SPLAssociatedTokenAccountProgramID))
	assert.False(t, IsFeeTransferProgram(solana.NewWallet().PublicKey()))
}
