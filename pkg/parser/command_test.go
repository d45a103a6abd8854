package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoute(t *testing.T) {
	req, err := ParseRoute("100 USDC to ETH")
	require.NoError(t, err)
	assert.Equal(t, "100", req.Amount)
	assert.Equal(t, "USDC", req.SourceToken)
	assert.Equal(t, "ETH", req.DestToken)
	assert.Empty(t, req.DestChain)

	req, err = ParseRoute("  1.5 sol TO usdc on Ethereum ")
	require.NoError(t, err)
	assert.Equal(t, "1.5", req.Amount)
	assert.Equal(t, "SOL", req.SourceToken)
	assert.Equal(t, "USDC", req.DestToken)
	assert.Equal(t, "ethereum", req.DestChain)

	for _, bad := range []string{"", "USDC to ETH", "100 USDC", "100 USDC ETH"} {
		_, err := ParseRoute(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestBaseUnits(t *testing.T) {
	units, err := BaseUnits("100", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), units)

	units, err = BaseUnits("1.5", 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), units)

	units, err = BaseUnits("0.000001", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), units)

	_, err = BaseUnits("0.0000001", 6)
	assert.Error(t, err, "sub-precision fractions must not be truncated")

	_, err = BaseUnits("0", 6)
	assert.Error(t, err)

	_, err = BaseUnits("abc", 6)
	assert.Error(t, err)
}

func TestNormalizeTokenSymbol(t *testing.T) {
	assert.Equal(t, "BTC", NormalizeTokenSymbol("wbtc"))
	assert.Equal(t, "ETH", NormalizeTokenSymbol(" WETH "))
	assert.Equal(t, "USDC", NormalizeTokenSymbol("usdc"))
}
