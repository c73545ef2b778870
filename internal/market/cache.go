package market

import (
	"sync"
	"time"
)

// Cache holds the most recent state of each market with a TTL, so a failed scan
// can still produce a snapshot from data that is fresh enough.
type Cache struct {
	mu      sync.RWMutex
	markets map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	state     MarketState
	fetchedAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		markets: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) Get(id string) (MarketState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.markets[id]
	if !ok || c.now().Sub(entry.fetchedAt) > c.ttl {
		return MarketState{}, false
	}
	return copyState(entry.state), true
}

func (c *Cache) SetAll(states []MarketState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, st := range states {
		c.markets[st.MarketID] = cacheEntry{
			state:     copyState(st),
			fetchedAt: now,
		}
	}
}

// Snapshot builds a snapshot of all non-expired entries, evicting expired ones.
func (c *Cache) Snapshot() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	states := make([]MarketState, 0, len(c.markets))
	for id, entry := range c.markets {
		if now.Sub(entry.fetchedAt) > c.ttl {
			delete(c.markets, id)
			continue
		}
		states = append(states, entry.state)
	}
	return NewSnapshot(now, states...)
}
