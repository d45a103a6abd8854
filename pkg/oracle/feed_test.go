package oracle

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFeed(t *testing.T) {
	published := time.Unix(1700000000, 0)
	data := encodeTestFeed(15_000_000_000, -8, published)

	feed, err := DecodeFeed(data)
	require.NoError(t, err)
	assert.True(t, feed.Price.Equal(decimal.NewFromInt(150)), "got %s", feed.Price)
	assert.True(t, feed.Confidence.Equal(decimal.RequireFromString("0.15")), "got %s", feed.Confidence)
	assert.Equal(t, published, feed.PublishedAt)
}

func TestDecodeFeedRejectsShortData(t *testing.T) {
	_, err := DecodeFeed(make([]byte, 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestDecodeFeedRejectsWrongMagic(t *testing.T) {
	data := encodeTestFeed(15_000_000_000, -8, time.Now())
	binary.LittleEndian.PutUint32(data[offMagic:], 0xdeadbeef)

	_, err := DecodeFeed(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestDecodeFeedRejectsNonTradingStatus(t *testing.T) {
	data := encodeTestFeed(15_000_000_000, -8, time.Now())
	binary.LittleEndian.PutUint32(data[offAggStatus:], 0)

	_, err := DecodeFeed(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading")
}

func TestDecodeFeedRejectsNonPositivePrice(t *testing.T) {
	data := encodeTestFeed(15_000_000_000, -8, time.Now())
	binary.LittleEndian.PutUint64(data[offAggPrice:], 0)

	_, err := DecodeFeed(data)
	assert.Error(t, err)

	neg := encodeTestFeed(-1, -8, time.Now())
	_, err = DecodeFeed(neg)
	assert.Error(t, err)
}

func TestDecodeFeedRejectsExtremeExponent(t *testing.T) {
	data := encodeTestFeed(150, 20, time.Now())
	_, err := DecodeFeed(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exponent")
}
