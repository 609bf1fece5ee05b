package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/lidmap/mapping"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

var lookupCachePrefix string = "lidmap/lookup/"

type lookupEntry struct {
	Updated time.Time
	Results []mapping.LookupResult
}

// Caches external lookup answers in Redis (and an in-process LRU), so that several resolver processes share them. Negative answers are kept for a shorter time. Lookup failures are never cached.
type LookupCache struct {
	Inner  mapping.LookupFunc
	HitTTL time.Duration
	// how long "doesn't exist" answers are cached
	MissTTL time.Duration

	cache *cache.Cache
	log   *slog.Logger
}

// `rdb` may be nil, in which case only the in-process cache is used. `lruSize` is the size of the in-process cache; its TTL is the longer of the two, and isStale applies the per-answer TTL.
func NewLookupCache(inner mapping.LookupFunc, rdb *redis.Client, hitTTL, missTTL time.Duration, lruSize int) *LookupCache {
	opts := &cache.Options{
		LocalCache: cache.NewTinyLFU(lruSize, max(hitTTL, missTTL)),
	}
	if rdb != nil {
		opts.Redis = rdb
	}
	return &LookupCache{
		Inner:   inner,
		HitTTL:  hitTTL,
		MissTTL: missTTL,
		cache:   cache.New(opts),
		log:     slog.Default().With("component", "lookupcache"),
	}
}

func (c *LookupCache) isStale(e *lookupEntry) bool {
	ttl := c.HitTTL
	if !found(e.Results) {
		ttl = c.MissTTL
	}
	return time.Since(e.Updated) > ttl
}

func found(results []mapping.LookupResult) bool {
	return len(results) > 0 && results[0].Exists
}

// Implements [mapping.LookupFunc].
func (c *LookupCache) Lookup(ctx context.Context, pn string) ([]mapping.LookupResult, error) {
	var entry lookupEntry
	err := c.cache.Get(ctx, lookupCachePrefix+pn, &entry)
	if err != nil && err != cache.ErrCacheMiss {
		c.log.Warn("lookup cache read failed", "pn", pn, "err", err)
	}
	if err == nil && !c.isStale(&entry) {
		lookupCacheHits.Inc()
		return entry.Results, nil
	}
	lookupCacheMisses.Inc()

	results, err := c.Inner(ctx, pn)
	if err != nil {
		return nil, err
	}

	ttl := c.HitTTL
	if !found(results) {
		ttl = c.MissTTL
	}
	err = c.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   lookupCachePrefix + pn,
		Value: lookupEntry{Updated: time.Now(), Results: results},
		TTL:   ttl,
	})
	if err != nil {
		c.log.Warn("lookup cache write failed", "pn", pn, "err", err)
	}
	return results, nil
}

// Drops any cached answer for the PN identifier.
func (c *LookupCache) Purge(ctx context.Context, pn string) error {
	err := c.cache.Delete(ctx, lookupCachePrefix+pn)
	if err == cache.ErrCacheMiss {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup cache purge failed: %w", err)
	}
	return nil
}
