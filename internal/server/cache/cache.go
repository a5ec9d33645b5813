// Package cache provides the optional Redis-backed search result cache.
// Results are keyed by collection and a digest of the full query, expire
// after a configurable TTL, and are invalidated wholesale whenever the
// collection is mutated.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/searchlite/searchlite/internal/engine"
	"github.com/searchlite/searchlite/pkg/config"
	pkgredis "github.com/searchlite/searchlite/pkg/redis"
)

const keyPrefix = "search:"

// QueryCache caches search results in Redis. Concurrent identical queries
// are collapsed through singleflight so a cold key is computed once.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache on top of the given Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached result for (collection, query) or computes
// and stores it. The bool reports whether the result came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	collection string,
	query engine.Query,
	computeFn func() engine.Result,
) (engine.Result, bool) {
	key, err := c.buildKey(collection, query)
	if err != nil {
		return computeFn(), false
	}

	if result, ok := c.get(ctx, key); ok {
		return result, true
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result := computeFn()
		c.set(ctx, key, result)
		return result, nil
	})
	return v.(engine.Result), false
}

// Invalidate drops every cached result for the collection. Called after any
// mutation.
func (c *QueryCache) Invalidate(ctx context.Context, collection string) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+collection+":*")
	if err != nil {
		c.logger.Error("cache invalidation failed", "collection", collection, "error", err)
		return
	}
	if deleted > 0 {
		c.logger.Debug("cache invalidated", "collection", collection, "keys", deleted)
	}
}

// Stats returns hit and miss counters since startup.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) get(ctx context.Context, key string) (engine.Result, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return engine.Result{}, false
	}
	var result engine.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return engine.Result{}, false
	}
	c.hits.Add(1)
	return result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result engine.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) buildKey(collection string, query engine.Query) (string, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return "", fmt.Errorf("marshaling query for cache key: %w", err)
	}
	digest := sha256.Sum256(payload)
	return fmt.Sprintf("%s%s:%x", keyPrefix, collection, digest[:16]), nil
}
