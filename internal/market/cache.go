package market

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// QuoteCache is a read-through Redis cache for latest prices. Quote
// lookups hit Redis first and fall back to the wrapped provider on a
// miss, writing the result back with a short TTL. Cache failures are
// logged and degrade to direct provider calls rather than failing the
// step.
type QuoteCache struct {
	inner SnapshotProvider
	rdb   *redis.Client
	ttl   time.Duration

	hits   int64 // atomic
	misses int64 // atomic
}

// NewQuoteCache wraps inner with a Redis-backed price cache
func NewQuoteCache(inner SnapshotProvider, rdb *redis.Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &QuoteCache{inner: inner, rdb: rdb, ttl: ttl}
}

func quoteKey(symbol string) string {
	return "equityrun:quote:" + symbol
}

// DownloadBars passes through to the provider; histories are not cached
func (c *QuoteCache) DownloadBars(ctx context.Context, symbols []string, period, interval string) (map[string]*Series, error) {
	return c.inner.DownloadBars(ctx, symbols, period, interval)
}

// LatestPrice returns the cached quote if fresh, otherwise fetches and caches
func (c *QuoteCache) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, quoteKey(symbol)).Result()
		if err == nil {
			price, perr := strconv.ParseFloat(val, 64)
			if perr == nil {
				atomic.AddInt64(&c.hits, 1)
				return price, nil
			}
		} else if err != redis.Nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Quote cache read failed")
		}
	}

	atomic.AddInt64(&c.misses, 1)
	price, err := c.inner.LatestPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("quote fallthrough %s: %w", symbol, err)
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, quoteKey(symbol), strconv.FormatFloat(price, 'f', -1, 64), c.ttl).Err(); err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Quote cache write failed")
		}
	}
	return price, nil
}

// HitRate returns the cache hit ratio since startup
func (c *QuoteCache) HitRate() float64 {
	hits := atomic.LoadInt64(&c.hits)
	total := hits + atomic.LoadInt64(&c.misses)
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
