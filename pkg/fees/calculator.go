package fees

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"swapd/pkg/oracle"
	"swapd/pkg/types"
)

const (
	// LamportsPerSignature is the base fee per signature on the source
	// chain.
	LamportsPerSignature = 5000

	lamportsPerSOL = 1_000_000_000
	usdcUnit       = 1_000_000 // USDC has 6 decimals
)

var (
	decLamportsPerSOL = decimal.NewFromInt(lamportsPerSOL)
	decUSDCUnit       = decimal.NewFromInt(usdcUnit)
)

// MinimumFee is the smallest acceptable user fee, expressed in both
// supported denominations so the caller can choose.
type MinimumFee struct {
	SOL      types.UserFee
	USDC     types.UserFee
	ValueUSD decimal.Decimal
}

// ByToken returns the minimum fee in the requested denomination.
func (m *MinimumFee) ByToken(token types.FeeToken) (types.UserFee, error) {
	switch token {
	case types.FeeTokenSOL:
		return m.SOL, nil
	case types.FeeTokenUSDC:
		return m.USDC, nil
	default:
		return types.UserFee{}, fmt.Errorf("unsupported fee token %q", token)
	}
}

// Calculator computes user fees from sponsor costs using the cached
// reference price.
type Calculator struct {
	oracle         *oracle.Oracle
	platformFeeBps int64
}

// NewCalculator creates a fee calculator.
func NewCalculator(o *oracle.Oracle, platformFeeBps int64) *Calculator {
	return &Calculator{oracle: o, platformFeeBps: platformFeeBps}
}

// MinimumFee computes the smallest fee that covers the sponsor cost plus
// a volatility buffer and the optional platform fee. Both denominations
// round up to their smallest unit; rounding down would undercharge and
// break the sponsor guarantee.
func (c *Calculator) MinimumFee(ctx context.Context, costs *types.CostBreakdown, volatilityBuffer float64) (*MinimumFee, error) {
	price, err := c.oracle.Price(ctx)
	if err != nil {
		return nil, err
	}

	costSOL := decimal.NewFromInt(int64(costs.TotalSponsorCost)).Div(decLamportsPerSOL)
	usd := costSOL.Mul(price).
		Mul(decimal.NewFromFloat(1 + volatilityBuffer)).
		Mul(decimal.NewFromInt(10000 + c.platformFeeBps).Div(decimal.NewFromInt(10000)))

	lamports := usd.Div(price).Mul(decLamportsPerSOL).Ceil()
	usdcUnits := usd.Mul(decUSDCUnit).Ceil()

	usdStr := usd.StringFixed(8)
	return &MinimumFee{
		SOL: types.UserFee{
			Token:    types.FeeTokenSOL,
			Amount:   uint64(lamports.IntPart()),
			ValueUSD: usdStr,
		},
		USDC: types.UserFee{
			Token:    types.FeeTokenUSDC,
			Amount:   uint64(usdcUnits.IntPart()),
			ValueUSD: usdStr,
		},
		ValueUSD: usd,
	}, nil
}

// Convert translates an amount between the supported denominations at
// the cached reference price, rounding up. Identity when from == to.
func (c *Calculator) Convert(ctx context.Context, amount uint64, from, to types.FeeToken) (uint64, error) {
	if from == to {
		return amount, nil
	}

	price, err := c.oracle.Price(ctx)
	if err != nil {
		return 0, err
	}

	switch {
	case from == types.FeeTokenSOL && to == types.FeeTokenUSDC:
		sol := decimal.NewFromInt(int64(amount)).Div(decLamportsPerSOL)
		return uint64(sol.Mul(price).Mul(decUSDCUnit).Ceil().IntPart()), nil
	case from == types.FeeTokenUSDC && to == types.FeeTokenSOL:
		usd := decimal.NewFromInt(int64(amount)).Div(decUSDCUnit)
		return uint64(usd.Div(price).Mul(decLamportsPerSOL).Ceil().IntPart()), nil
	default:
		return 0, fmt.Errorf("unsupported conversion %s -> %s", from, to)
	}
}

// FeeValueUSD normalizes a user fee to USD at the cached reference price.
func (c *Calculator) FeeValueUSD(ctx context.Context, fee *types.UserFee) (decimal.Decimal, error) {
	switch fee.Token {
	case types.FeeTokenSOL:
		price, err := c.oracle.Price(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(int64(fee.Amount)).Div(decLamportsPerSOL).Mul(price), nil
	case types.FeeTokenUSDC:
		return decimal.NewFromInt(int64(fee.Amount)).Div(decUSDCUnit), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported fee token %q", fee.Token)
	}
}

// CostValueUSD normalizes a sponsor cost to USD.
func (c *Calculator) CostValueUSD(ctx context.Context, costs *types.CostBreakdown) (decimal.Decimal, error) {
	price, err := c.oracle.Price(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(int64(costs.TotalSponsorCost)).Div(decLamportsPerSOL).Mul(price), nil
}

// DriftThreshold returns the absolute amount of acceptable drift for a
// quoted amount at the given percentage.
func DriftThreshold(amount decimal.Decimal, maxDriftPercent float64) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(maxDriftPercent)).Div(decimal.NewFromInt(100))
}

// DriftExceeded compares a previously quoted destination amount with a
// fresh re-quote and reports whether the change exceeds the threshold.
func DriftExceeded(oldAmount, newAmount string, maxDriftPercent float64) (decimal.Decimal, bool, error) {
	oldDec, err := decimal.NewFromString(oldAmount)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid quoted amount %q: %w", oldAmount, err)
	}
	newDec, err := decimal.NewFromString(newAmount)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid re-quoted amount %q: %w", newAmount, err)
	}
	if oldDec.IsZero() {
		return decimal.Zero, false, fmt.Errorf("quoted amount is zero")
	}

	drift := oldDec.Sub(newDec).Abs()
	return drift, drift.GreaterThan(DriftThreshold(oldDec, maxDriftPercent)), nil
}
