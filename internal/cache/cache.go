// Package cache is a thin Redis layer for derived scores. Everything in
// it is recomputable from the record store, so a cold or absent cache
// only costs latency.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keysplatform/moat/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client with JSON get/set helpers. A nil *Cache is
// valid and behaves as a permanent miss, so callers don't branch on
// whether caching is configured.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

// New connects to Redis at the given URL (redis://host:port/db) and
// verifies the connection.
func New(ctx context.Context, url string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client:  client,
		ttl:     ttl,
		metrics: metrics.NewMetrics(),
	}, nil
}

// GetJSON loads a cached value into v. Returns false on miss; a broken
// cache read also reports a miss rather than an error.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) bool {
	if c == nil {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.metrics.CacheMisses.Inc()
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.metrics.CacheMisses.Inc()
		return false
	}

	c.metrics.CacheHits.Inc()
	return true
}

// SetJSON stores a value under the cache TTL. Failures are silent; the
// next read recomputes.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}

// Invalidate drops keys after the underlying records change.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
