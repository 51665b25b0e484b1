package pricegate

import (
	"sync"
	"time"
)

// PriceCache keeps recent quotes per feed to avoid one Hermes request per job
type PriceCache struct {
	mu       sync.RWMutex
	cache    map[string]*cachedQuote
	cacheTTL time.Duration
	now      func() time.Time
}

// cachedQuote is a quote with the time it was fetched
type cachedQuote struct {
	quote     Quote
	timestamp time.Time
}

// NewPriceCache creates a new price cache
func NewPriceCache(cacheTTL time.Duration) *PriceCache {
	return &PriceCache{
		cache:    make(map[string]*cachedQuote),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Get retrieves a cached quote if it is still valid
func (c *PriceCache) Get(feedID string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[feedID]
	if !exists {
		return Quote{}, false
	}

	if c.now().Sub(cached.timestamp) > c.cacheTTL {
		return Quote{}, false
	}

	return cached.quote, true
}

// Set stores a quote with the current timestamp
func (c *PriceCache) Set(feedID string, quote Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[feedID] = &cachedQuote{
		quote:     quote,
		timestamp: c.now(),
	}
}

// Clear removes all cached entries
func (c *PriceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cachedQuote)
}

// Len returns the number of cached feeds
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
