package swap

import (
	"sync"
	"time"

	"swapd/pkg/types"
)

// pendingCache holds prepared swaps between prepare and execute. It is
// owned exclusively by the orchestrator; entries are ephemeral and never
// treated as committed state. Expired entries are swept opportunistically
// on each access.
type pendingCache struct {
	mu      sync.Mutex
	entries map[string]*types.PreparedSwap
	now     func() time.Time
}

func newPendingCache() *pendingCache {
	return &pendingCache{
		entries: make(map[string]*types.PreparedSwap),
		now:     time.Now,
	}
}

// sweep removes expired entries. Caller must hold the lock.
func (c *pendingCache) sweep() {
	now := c.now()
	for id, entry := range c.entries {
		if !entry.ExpiresAt.After(now) {
			delete(c.entries, id)
		}
	}
}

// Put stores a prepared swap keyed by its id.
func (c *pendingCache) Put(entry *types.PreparedSwap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	c.entries[entry.SwapID] = entry
}

// Take removes and returns the entry for id. The removal makes
// execute-after-prepare succeed exactly once; a second take of the same
// id reports missing, which callers surface as not-found.
func (c *pendingCache) Take(id string) (*types.PreparedSwap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	delete(c.entries, id)
	return entry, true
}

// Len returns the number of live entries.
func (c *pendingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	return len(c.entries)
}
