package oracle

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swapd/pkg/chainrpc"
	"swapd/pkg/swaperr"
)

// feedChain serves a price feed account and counts reads.
type feedChain struct {
	data  []byte
	err   error
	reads int
}

var _ chainrpc.Client = (*feedChain)(nil)

func (f *feedChain) GetBalance(context.Context, solana.PublicKey) (uint64, error) { return 0, nil }
func (f *feedChain) GetTokenBalance(context.Context, solana.PublicKey) (uint64, error) {
	return 0, nil
}
func (f *feedChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}
func (f *feedChain) GetAccountData(context.Context, solana.PublicKey) ([]byte, error) {
	f.reads++
	return f.data, f.err
}
func (f *feedChain) AccountExists(context.Context, solana.PublicKey) (bool, error) {
	return true, nil
}
func (f *feedChain) GetLookupTable(context.Context, solana.PublicKey) (solana.PublicKeySlice, error) {
	return nil, nil
}
func (f *feedChain) SimulateTransaction(context.Context, *solana.Transaction) error { return nil }
func (f *feedChain) SendRawTransaction(context.Context, []byte) (solana.Signature, error) {
	return solana.Signature{}, errors.New("not implemented")
}

func encodeTestFeed(rawPrice int64, expo int32, publishedAt time.Time) []byte {
	data := make([]byte, minFeedDataSize)
	binary.LittleEndian.PutUint32(data[offMagic:], feedMagic)
	binary.LittleEndian.PutUint32(data[offVersion:], feedVersion)
	binary.LittleEndian.PutUint32(data[offAcctType:], feedTypePrice)
	binary.LittleEndian.PutUint32(data[offExponent:], uint32(expo))
	binary.LittleEndian.PutUint64(data[offTimestamp:], uint64(publishedAt.Unix()))
	binary.LittleEndian.PutUint64(data[offAggPrice:], uint64(rawPrice))
	binary.LittleEndian.PutUint64(data[offAggConf:], uint64(rawPrice/1000))
	binary.LittleEndian.PutUint32(data[offAggStatus:], statusTrading)
	return data
}

func TestPriceCachesWithinTTL(t *testing.T) {
	chain := &feedChain{data: encodeTestFeed(15_000_000_000, -8, time.Now())}
	o := New(chain, solana.PublicKey{}, time.Minute, time.Hour, zap.NewNop())

	price, err := o.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(150)), "got %s", price)
	assert.Equal(t, 1, chain.reads)

	// Second read within the TTL never touches the chain.
	price, err = o.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, 1, chain.reads)

	cached, ok := o.CachedPrice()
	assert.True(t, ok)
	assert.True(t, cached.Equal(decimal.NewFromInt(150)))
}

func TestPriceServesStaleOnRefreshFailure(t *testing.T) {
	chain := &feedChain{data: encodeTestFeed(15_000_000_000, -8, time.Now())}
	o := New(chain, solana.PublicKey{}, time.Minute, time.Hour, zap.NewNop())

	_, err := o.Price(context.Background())
	require.NoError(t, err)

	// Expire the cache and break the feed.
	o.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	chain.err = errors.New("rpc down")

	price, err := o.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(150)))
}

func TestPriceFailsWithoutCache(t *testing.T) {
	chain := &feedChain{err: errors.New("rpc down")}
	o := New(chain, solana.PublicKey{}, time.Minute, time.Hour, zap.NewNop())

	_, err := o.Price(context.Background())
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeOracleUnavailable))

	_, ok := o.CachedPrice()
	assert.False(t, ok)
}

func TestPriceRejectsOldPublication(t *testing.T) {
	chain := &feedChain{data: encodeTestFeed(15_000_000_000, -8, time.Now().Add(-2*time.Hour))}
	o := New(chain, solana.PublicKey{}, time.Minute, time.Hour, zap.NewNop())

	_, err := o.Price(context.Background())
	require.Error(t, err)
	assert.True(t, swaperr.HasCode(err, swaperr.CodeOracleUnavailable))
}

func TestPriceRejectsImplausibleValue(t *testing.T) {
	// $200000 is outside the sanity band even if the feed is healthy.
	chain := &feedChain{data: encodeTestFeed(20_000_000_000_000, -8, time.Now())}
	o := New(chain, solana.PublicKey{}, time.Minute, time.Hour, zap.NewNop())

	_, err := o.Price(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}
