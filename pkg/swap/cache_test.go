package swap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapd/pkg/types"
)

func pendingEntry(id string, expiresAt time.Time) *types.PreparedSwap {
	return &types.PreparedSwap{
		SwapID:    id,
		ExpiresAt: expiresAt,
	}
}

func TestPendingCacheTakeIsExactlyOnce(t *testing.T) {
	c := newPendingCache()
	c.Put(pendingEntry("swap-1", time.Now().Add(5*time.Minute)))

	entry, ok := c.Take("swap-1")
	require.True(t, ok)
	assert.Equal(t, "swap-1", entry.SwapID)

	_, ok = c.Take("swap-1")
	assert.False(t, ok)
}

func TestPendingCacheMissing(t *testing.T) {
	c := newPendingCache()
	_, ok := c.Take("nope")
	assert.False(t, ok)
}

func TestPendingCacheSweepsExpired(t *testing.T) {
	c := newPendingCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(pendingEntry("live", now.Add(5*time.Minute)))
	c.Put(pendingEntry("dead", now.Add(time.Minute)))
	assert.Equal(t, 2, c.Len())

	now = now.Add(2 * time.Minute)

	_, ok := c.Take("dead")
	assert.False(t, ok)

	_, ok = c.Take("live")
	assert.True(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestPendingCacheExpiryIsExclusive(t *testing.T) {
	c := newPendingCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(pendingEntry("edge", now))

	// An entry expiring exactly now is already gone.
	_, ok := c.Take("edge")
	assert.False(t, ok)
}
