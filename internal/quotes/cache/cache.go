package cache

import (
	"sync"
	"time"

	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/metrics"
)

// Entry is never mutated after Set; replacing a symbol swaps the pointer.
type Entry struct {
	Record    model.PriceRecord
	FetchedAt time.Time
}

// PriceCache holds the latest record per symbol. There is no expiry;
// staleness is judged by callers through IsStale.
type PriceCache struct {
	mu  sync.RWMutex
	m   map[string]*Entry
	now func() time.Time
}

func New(now func() time.Time) *PriceCache {
	if now == nil {
		now = time.Now
	}
	return &PriceCache{m: make(map[string]*Entry, 8), now: now}
}

func (c *PriceCache) Get(symbol string) (Entry, bool) {
	c.mu.RLock()
	e := c.m[symbol]
	c.mu.RUnlock()
	if e == nil {
		metrics.CacheMisses.Inc()
		return Entry{}, false
	}
	metrics.CacheHits.Inc()
	return *e, true
}

// Set replaces the entry for symbol, stamping FetchedAt with the cache clock.
func (c *PriceCache) Set(symbol string, rec model.PriceRecord) Entry {
	return c.SetAt(symbol, rec, c.now())
}

// SetAt is Set with an explicit fetch time, used when warming from a mirror.
func (c *PriceCache) SetAt(symbol string, rec model.PriceRecord, fetchedAt time.Time) Entry {
	e := &Entry{Record: rec, FetchedAt: fetchedAt}
	c.mu.Lock()
	c.m[symbol] = e
	c.mu.Unlock()
	return *e
}

func (c *PriceCache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.m, symbol)
	c.mu.Unlock()
}

// IsStale is true when symbol is absent or older than maxAge.
func (c *PriceCache) IsStale(symbol string, maxAge time.Duration) bool {
	c.mu.RLock()
	e := c.m[symbol]
	c.mu.RUnlock()
	if e == nil {
		return true
	}
	return c.now().Sub(e.FetchedAt) > maxAge
}

// Snapshot copies every entry.
func (c *PriceCache) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Entry, len(c.m))
	for k, e := range c.m {
		out[k] = *e
	}
	return out
}
