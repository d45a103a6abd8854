package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// RouteRequest is a parsed quote command.
type RouteRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
	DestChain   string
}

var routePattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)\s+TO\s+([A-Z0-9]+)(?:\s+ON\s+([A-Z0-9-]+))?$`)

// ParseRoute parses a natural language route description.
// Examples:
//   - "100 USDC to ETH"
//   - "1.5 SOL to USDC on ethereum"
func ParseRoute(command string) (*RouteRequest, error) {
	command = strings.TrimSpace(strings.ToUpper(command))

	matches := routePattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid route format. Expected: '<amount> <token> to <token> [on <chain>]' (e.g., '100 USDC to ETH on ethereum')")
	}

	return &RouteRequest{
		Amount:      matches[1],
		SourceToken: matches[2],
		DestToken:   matches[3],
		DestChain:   strings.ToLower(matches[4]),
	}, nil
}

// BaseUnits converts a human-readable amount to the token's smallest
// unit. Fractions below the token's precision are rejected rather than
// silently truncated.
func BaseUnits(amount string, decimals int) (uint64, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !dec.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}

	units := dec.Shift(int32(decimals))
	if !units.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	if units.GreaterThan(decimal.NewFromUint64(^uint64(0))) {
		return 0, fmt.Errorf("amount %s is out of range", amount)
	}

	return units.BigInt().Uint64(), nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format.
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"WBTC": "BTC",
		"WETH": "ETH",
		"WSOL": "SOL",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
