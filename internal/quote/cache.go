// Package quote implements the gateway to the upstream quote provider:
// a TTL cache, a daily call-budget guard, and the fetch orchestration
// every other component goes through for prices.
package quote

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papertrade/trade-engine/internal/model"
)

// CacheStats reports cache effectiveness for the status endpoint.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is a time-bound, best-effort quote cache. A lookup of an expired
// entry behaves as absent. Implementations: MemoryCache (process-local) and
// RedisCache (shared across instances).
type Cache interface {
	GetQuote(symbol string) (model.Quote, bool)
	PutQuote(q model.Quote)
	GetHistory(symbol string) ([]model.HistoricalBar, bool)
	PutHistory(symbol string, bars []model.HistoricalBar)
	Stats() CacheStats
}

type quoteEntry struct {
	quote     model.Quote
	expiresAt time.Time
}

type historyEntry struct {
	bars      []model.HistoricalBar
	expiresAt time.Time
}

// MemoryCache implements Cache with mutex-protected maps. Expired entries
// are evicted lazily on lookup and by the Run sweeper, so size stays bounded
// by the set of recently requested symbols.
type MemoryCache struct {
	mu         sync.RWMutex
	quotes     map[string]quoteEntry
	history    map[string]historyEntry
	quoteTTL   time.Duration
	historyTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time
}

// NewMemoryCache creates a cache with separate TTLs for quotes and
// historical series.
func NewMemoryCache(quoteTTL, historyTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		quotes:     make(map[string]quoteEntry),
		history:    make(map[string]historyEntry),
		quoteTTL:   quoteTTL,
		historyTTL: historyTTL,
		now:        time.Now,
	}
}

func (c *MemoryCache) GetQuote(symbol string) (model.Quote, bool) {
	c.mu.RLock()
	e, ok := c.quotes[symbol]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return model.Quote{}, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a fresh Put may have raced us.
		if cur, ok := c.quotes[symbol]; ok && c.now().After(cur.expiresAt) {
			delete(c.quotes, symbol)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return model.Quote{}, false
	}

	c.hits.Add(1)
	return e.quote, true
}

func (c *MemoryCache) PutQuote(q model.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Symbol] = quoteEntry{quote: q, expiresAt: c.now().Add(c.quoteTTL)}
}

func (c *MemoryCache) GetHistory(symbol string) ([]model.HistoricalBar, bool) {
	c.mu.RLock()
	e, ok := c.history[symbol]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		if ok {
			c.mu.Lock()
			if cur, ok := c.history[symbol]; ok && c.now().After(cur.expiresAt) {
				delete(c.history, symbol)
			}
			c.mu.Unlock()
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	bars := make([]model.HistoricalBar, len(e.bars))
	copy(bars, e.bars)
	return bars, true
}

func (c *MemoryCache) PutHistory(symbol string, bars []model.HistoricalBar) {
	stored := make([]model.HistoricalBar, len(bars))
	copy(stored, bars)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[symbol] = historyEntry{bars: stored, expiresAt: c.now().Add(c.historyTTL)}
}

func (c *MemoryCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Run sweeps expired entries periodically until ctx is cancelled.
// Must be called in a goroutine.
func (c *MemoryCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for sym, e := range c.quotes {
		if now.After(e.expiresAt) {
			delete(c.quotes, sym)
		}
	}
	for sym, e := range c.history {
		if now.After(e.expiresAt) {
			delete(c.history, sym)
		}
	}
}
