package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/neatrank/internal/metrics"
)

// redisOpTimeout bounds every cache round-trip
const redisOpTimeout = 500 * time.Millisecond

// RedisCachedProvider is a read-through cache in front of another provider.
// Closed historical buckets never change, so a zero TTL keeps them forever.
// Buckets still open at fetch time are served but not stored.
type RedisCachedProvider struct {
	provider Provider
	client   *redis.Client
	ttl      time.Duration
	now      func() time.Time
}

// NewRedisCachedProvider wraps provider with a Redis cache. If client is
// nil the provider is returned unwrapped.
func NewRedisCachedProvider(provider Provider, client *redis.Client, ttl time.Duration) Provider {
	if client == nil {
		return provider
	}
	return &RedisCachedProvider{
		provider: provider,
		client:   client,
		ttl:      ttl,
		now:      time.Now,
	}
}

// FetchCandles serves the bucket from Redis or fetches and stores it.
// Redis errors are treated as a miss; provider errors are returned.
func (c *RedisCachedProvider) FetchCandles(ctx context.Context, req BucketRequest) ([]Candle, error) {
	key := c.buildKey(req)

	candles, ok := c.get(ctx, key)
	metrics.RecordCacheLookup(metrics.CacheLayerRedis, ok)
	if ok {
		log.Debug().
			Str("cache_key", key).
			Int("candles", len(candles)).
			Msg("Cache hit for candles")
		return candles, nil
	}

	candles, err := c.provider.FetchCandles(ctx, req)
	if err != nil {
		return nil, err
	}

	if _, end := req.Range(); end.After(c.now()) {
		log.Debug().
			Str("cache_key", key).
			Time("bucket_end", end).
			Msg("Bucket still open, not caching")
		return candles, nil
	}

	c.set(ctx, key, candles)
	return candles, nil
}

func (c *RedisCachedProvider) get(ctx context.Context, key string) ([]Candle, bool) {
	cacheCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Redis get error - treating as cache miss")
		}
		return nil, false
	}

	var candles []Candle
	if err := json.Unmarshal(cached, &candles); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached candles")
		return nil, false
	}
	return candles, true
}

func (c *RedisCachedProvider) set(ctx context.Context, key string, candles []Candle) {
	data, err := json.Marshal(candles)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal candles for cache")
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := c.client.Set(cacheCtx, key, data, c.ttl).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to cache candles")
		return
	}

	log.Debug().
		Str("cache_key", key).
		Dur("ttl", c.ttl).
		Msg("Cached candles")
}

// buildKey creates a Redis key for one bucket
func (c *RedisCachedProvider) buildKey(req BucketRequest) string {
	return fmt.Sprintf("neatrank:candles:%s:%d:%d:%d:%d", req.Ticker, req.Interval, req.PeriodKey, req.Width, req.Lookback)
}

// Health checks if Redis is reachable
func (c *RedisCachedProvider) Health(ctx context.Context) error {
	cacheCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return c.client.Ping(cacheCtx).Err()
}
