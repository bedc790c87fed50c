// Package patterncache implements the Pattern Cache (C3): a fingerprint to
// prior-result lookup with TTL, backed by Redis. Hits refresh the TTL and
// mark the returned result as a cache hit in its performance metadata.
package patterncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capsuleforge/core/internal/config"
	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/metrics"
)

// ErrBelowConfidenceFloor is returned by Put when the result's confidence is
// below domain.MinCacheReadConfidence; such results are never stored.
var ErrBelowConfidenceFloor = errors.New("patterncache: result confidence below floor, not stored")

func keyFor(tenantID, fingerprint string) string {
	return fmt.Sprintf("patterncache:%s:%s", tenantID, fingerprint)
}

// Stats holds running hit/miss counters for one Cache instance.
type Stats struct {
	Hits   int64
	Misses int64
}

// Cache is a tenant-scoped Redis-backed pattern cache. A Cache instance is
// safe for concurrent use.
type Cache struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// Open connects to Redis and returns a ready Cache.
func Open(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("patterncache: connect: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an already-constructed redis.Client, for tests against
// miniredis or an alternate connection lifecycle.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Get looks up a fingerprint for one tenant. A miss returns (nil, false,
// nil). A hit refreshes the entry's TTL and stamps cache_hit=true on the
// returned result's metrics before returning it; per invariant, only
// entries whose confidence is >= domain.MinCacheReadConfidence are ever
// served — a stale or low-confidence entry is treated as a miss and purged.
func (c *Cache) Get(ctx context.Context, tenantID, fingerprint string) (*domain.GenerationResult, bool, error) {
	key := keyFor(tenantID, fingerprint)

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		metrics.PatternCacheMisses.Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("patterncache: get: %w", err)
	}

	var entry domain.PatternCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("patterncache: decode entry: %w", err)
	}

	now := time.Now()
	if !entry.CacheReadable(now) {
		c.misses.Add(1)
		metrics.PatternCacheMisses.Inc()
		_ = c.client.Del(ctx, key).Err()
		return nil, false, nil
	}

	if err := c.client.Expire(ctx, key, c.ttl).Err(); err != nil {
		return nil, false, fmt.Errorf("patterncache: refresh ttl: %w", err)
	}

	c.hits.Add(1)
	metrics.PatternCacheHits.Inc()
	result := entry.Result
	if result.Metrics == nil {
		result.Metrics = map[string]float64{}
	}
	result.Metrics["cache_hit"] = 1
	return &result, true, nil
}

// Put stores a generation result under a fingerprint for one tenant.
// Results below the confidence floor are refused outright, per invariant.
func (c *Cache) Put(ctx context.Context, tenantID, fingerprint string, result domain.GenerationResult) error {
	if result.Confidence < domain.MinCacheReadConfidence {
		return ErrBelowConfidenceFloor
	}

	entry := domain.PatternCacheEntry{
		Fingerprint: fingerprint,
		Result:      result,
		CreatedAt:   time.Now(),
		TTL:         c.ttl,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("patterncache: encode entry: %w", err)
	}

	key := keyFor(tenantID, fingerprint)
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("patterncache: put: %w", err)
	}
	return nil
}

// Stats reports the running hit/miss counts and the current key count for
// one tenant's namespace. Size is computed via SCAN, which is safe to run
// against production Redis since it does not block the event loop.
func (c *Cache) Stats(ctx context.Context, tenantID string) (Stats, int64, error) {
	stats := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}

	var size int64
	var cursor uint64
	match := keyFor(tenantID, "*")
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return stats, 0, fmt.Errorf("patterncache: scan: %w", err)
		}
		size += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stats, size, nil
}
