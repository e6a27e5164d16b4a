package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
)

// CacheEntry is a tracked exchange rate and the time it was last fetched
type CacheEntry struct {
	Rate      *entity.ExchangeRate
	Timestamp time.Time
}

// ExchangeRateCache keeps the exchange rates the service tracks. Entries
// never expire; they go stale after a while and are refreshed by the caller.
type ExchangeRateCache struct {
	cache      map[entity.Key]CacheEntry
	staleAfter time.Duration
	now        func() time.Time
	mutex      sync.RWMutex
}

// NewExchangeRateCache creates a new exchange rate cache
func NewExchangeRateCache(staleAfter time.Duration) *ExchangeRateCache {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &ExchangeRateCache{
		cache:      make(map[entity.Key]CacheEntry),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Get returns a tracked exchange rate
func (c *ExchangeRateCache) Get(key entity.Key) (*entity.ExchangeRate, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists {
		return nil, false
	}
	return entry.Rate, true
}

// IsStale reports whether the rate was fetched longer than the stale period
// ago. Unknown keys are stale.
func (c *ExchangeRateCache) IsStale(key entity.Key) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	return !exists || c.now().Sub(entry.Timestamp) > c.staleAfter
}

// Put starts tracking a rate, fetched now. An already tracked rate with
// the same key is kept and returned instead.
func (c *ExchangeRateCache) Put(rate *entity.ExchangeRate) (*entity.ExchangeRate, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := rate.Key()
	if entry, exists := c.cache[key]; exists {
		return entry.Rate, false
	}

	c.cache[key] = CacheEntry{
		Rate:      rate,
		Timestamp: c.now(),
	}
	return rate, true
}

// Touch marks a tracked rate as fetched now
func (c *ExchangeRateCache) Touch(key entity.Key) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, exists := c.cache[key]; exists {
		entry.Timestamp = c.now()
		c.cache[key] = entry
	}
}

// Remove stops tracking a rate and returns it
func (c *ExchangeRateCache) Remove(key entity.Key) (*entity.ExchangeRate, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.cache[key]
	if exists {
		delete(c.cache, key)
	}
	return entry.Rate, exists
}

// Rates returns the tracked rates ordered by key
func (c *ExchangeRateCache) Rates() []*entity.ExchangeRate {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	rates := make([]*entity.ExchangeRate, 0, len(c.cache))
	for _, entry := range c.cache {
		rates = append(rates, entry.Rate)
	}
	sort.Slice(rates, func(i, j int) bool {
		return rates[i].Key().String() < rates[j].Key().String()
	})
	return rates
}

// StaleKeys returns the keys of every stale rate
func (c *ExchangeRateCache) StaleKeys() []entity.Key {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	var keys []entity.Key
	for key, entry := range c.cache {
		if now.Sub(entry.Timestamp) > c.staleAfter {
			keys = append(keys, key)
		}
	}
	return keys
}

// Clear clears all entries from the cache
func (c *ExchangeRateCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache = make(map[entity.Key]CacheEntry)
}

// SetStaleAfter sets how long a fetched rate stays fresh
func (c *ExchangeRateCache) SetStaleAfter(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.staleAfter = duration
}

// Size returns the number of items in the cache
func (c *ExchangeRateCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.cache)
}
