package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papertrade/trade-engine/internal/model"
)

// RedisCache implements Cache over Redis so multiple engine instances share
// one quote cache (and therefore one upstream call per symbol per TTL).
// Redis enforces expiry itself via SET TTLs; a miss under contention just
// triggers an extra upstream call, which is safe.
type RedisCache struct {
	rdb        *redis.Client
	quoteTTL   time.Duration
	historyTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache creates a Redis-backed quote cache.
func NewRedisCache(rdb *redis.Client, quoteTTL, historyTTL time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, quoteTTL: quoteTTL, historyTTL: historyTTL}
}

func (c *RedisCache) GetQuote(symbol string) (model.Quote, bool) {
	data, err := c.rdb.Get(context.Background(), quoteKey(symbol)).Bytes()
	if err == nil {
		var q model.Quote
		if json.Unmarshal(data, &q) == nil {
			c.hits.Add(1)
			return q, true
		}
	}
	c.misses.Add(1)
	return model.Quote{}, false
}

func (c *RedisCache) PutQuote(q model.Quote) {
	if data, err := json.Marshal(q); err == nil {
		c.rdb.Set(context.Background(), quoteKey(q.Symbol), data, c.quoteTTL)
	}
}

func (c *RedisCache) GetHistory(symbol string) ([]model.HistoricalBar, bool) {
	data, err := c.rdb.Get(context.Background(), historyKey(symbol)).Bytes()
	if err == nil {
		var bars []model.HistoricalBar
		if json.Unmarshal(data, &bars) == nil {
			c.hits.Add(1)
			return bars, true
		}
	}
	c.misses.Add(1)
	return nil, false
}

func (c *RedisCache) PutHistory(symbol string, bars []model.HistoricalBar) {
	if data, err := json.Marshal(bars); err == nil {
		c.rdb.Set(context.Background(), historyKey(symbol), data, c.historyTTL)
	}
}

func (c *RedisCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func quoteKey(symbol string) string   { return fmt.Sprintf("quote:%s", symbol) }
func historyKey(symbol string) string { return fmt.Sprintf("history:%s", symbol) }
