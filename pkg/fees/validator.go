package fees

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapd/pkg/swaperr"
	"swapd/pkg/types"
)

// DecodedInstruction is the minimal view of an instruction the shape
// validator needs.
type DecodedInstruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte
}

// feeTransferPrograms are the programs a fee-collection instruction may
// target: native transfer, token transfer, or idempotent account
// creation.
var feeTransferPrograms = map[solana.PublicKey]bool{
	solana.SystemProgramID:                   true,
	solana.TokenProgramID:                    true,
	solana.SPLAssociatedTokenAccountProgramID: true,
}

// IsFeeTransferProgram reports whether a program can carry the fee leg.
func IsFeeTransferProgram(program solana.PublicKey) bool {
	return feeTransferPrograms[program]
}

// Validator enforces the economic guarantees before any funds move. It
// is pure validation: no side effects beyond reads of the calculator's
// cached price.
type Validator struct {
	calc              *Calculator
	maxSponsorCostUSD decimal.Decimal
	log               *zap.Logger
	now               func() time.Time
}

// NewValidator creates a fee validator with the given absolute sponsor
// cost ceiling in USD.
func NewValidator(calc *Calculator, maxSponsorCostUSD float64, log *zap.Logger) *Validator {
	return &Validator{
		calc:              calc,
		maxSponsorCostUSD: decimal.NewFromFloat(maxSponsorCostUSD),
		log:               log,
		now:               time.Now,
	}
}

// ValidateEconomics checks every economic guarantee and returns all
// violations at once rather than short-circuiting on the first.
func (v *Validator) ValidateEconomics(ctx context.Context, fee *types.UserFee, costs *types.CostBreakdown, quote *types.BridgeQuote, volatilityBuffer float64) error {
	var violations []string

	feeUSD, err := v.calc.FeeValueUSD(ctx, fee)
	if err != nil {
		return err
	}
	costUSD, err := v.calc.CostValueUSD(ctx, costs)
	if err != nil {
		return err
	}

	required := costUSD.Mul(decimal.NewFromFloat(1 + volatilityBuffer))
	if feeUSD.LessThan(required) {
		violations = append(violations, fmt.Sprintf(
			"fee value $%s does not cover sponsor cost $%s with %.0f%% buffer (required $%s)",
			feeUSD.StringFixed(6), costUSD.StringFixed(6), volatilityBuffer*100, required.StringFixed(6)))
	}

	if quote.Expired(v.now()) {
		violations = append(violations, fmt.Sprintf("quote %s expired at %s", quote.QuoteID, quote.ValidUntil.Format(time.RFC3339)))
	}

	minimum, err := v.calc.MinimumFee(ctx, costs, volatilityBuffer)
	if err != nil {
		return err
	}
	minInToken, err := minimum.ByToken(fee.Token)
	if err != nil {
		return err
	}
	if fee.Amount < minInToken.Amount {
		violations = append(violations, fmt.Sprintf(
			"fee %d %s below minimum %d %s", fee.Amount, fee.Token, minInToken.Amount, fee.Token))
	}

	if costUSD.GreaterThan(v.maxSponsorCostUSD) {
		violations = append(violations, fmt.Sprintf(
			"sponsor cost $%s exceeds absolute ceiling $%s", costUSD.StringFixed(2), v.maxSponsorCostUSD.StringFixed(2)))
	}

	if len(violations) > 0 {
		return swaperr.New(swaperr.CodeFeeViolation, "economic guarantee failed: %v", violations)
	}
	return nil
}

// ValidateBalance checks that a wallet balance covers swap amount plus
// fee plus optional transfer fee, reporting the exact deficit.
func (v *Validator) ValidateBalance(balance, swapAmount, feeAmount, transferFee uint64) error {
	required := swapAmount + feeAmount + transferFee
	if balance < required {
		return swaperr.New(swaperr.CodeInsufficientBalance,
			"insufficient balance: have %d, need %d (short %d)", balance, required, required-balance)
	}
	return nil
}

// ValidateNoFundLeak is the coverage check restated as a hard guard,
// applied right before any transaction leaves the service boundary. A
// fee worth less than the sponsor cost means the sponsor pays for the
// user's transaction without recovery.
func (v *Validator) ValidateNoFundLeak(ctx context.Context, fee *types.UserFee, costs *types.CostBreakdown) error {
	feeUSD, err := v.calc.FeeValueUSD(ctx, fee)
	if err != nil {
		return err
	}
	costUSD, err := v.calc.CostValueUSD(ctx, costs)
	if err != nil {
		return err
	}
	if feeUSD.LessThan(costUSD) {
		return swaperr.New(swaperr.CodeFeeViolation,
			"FUND LEAK BLOCKED: fee value $%s is below sponsor cost $%s",
			feeUSD.StringFixed(6), costUSD.StringFixed(6))
	}
	return nil
}

// ValidateShape checks the decoded instruction list of a sponsored
// transaction: at least two instructions, and the first must target a
// fee-transfer-capable program. Duplicate instructions produce a
// warning, not a hard failure.
func (v *Validator) ValidateShape(instructions []DecodedInstruction) error {
	if len(instructions) < 2 {
		return swaperr.New(swaperr.CodeTxValidation,
			"transaction has %d instruction(s), sponsored swaps require at least 2 (fee + bridge)", len(instructions))
	}

	first := instructions[0]
	if !IsFeeTransferProgram(first.ProgramID) {
		return swaperr.New(swaperr.CodeTxValidation,
			"first instruction targets %s, expected a fee-transfer-capable program", first.ProgramID)
	}

	for i := 0; i < len(instructions); i++ {
		for j := i + 1; j < len(instructions); j++ {
			if instructions[i].ProgramID.Equals(instructions[j].ProgramID) &&
				bytes.Equal(instructions[i].Data, instructions[j].Data) {
				v.log.Warn("duplicate instruction detected",
					zap.Int("first", i),
					zap.Int("second", j),
					zap.String("program", instructions[i].ProgramID.String()))
			}
		}
	}

	return nil
}
