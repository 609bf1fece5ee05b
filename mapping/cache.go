package mapping

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultCacheCapacity   = 10_000
	DefaultCacheTTL        = 7 * 24 * time.Hour
	DefaultCacheResolution = time.Minute
)

type CacheConfig struct {
	// maximum number of entries; least-recently-used entries are evicted beyond this. Zero means DefaultCacheCapacity.
	Capacity int
	// how long an entry stays valid after it was written (or last read, with RefreshOnRead). Zero means DefaultCacheTTL.
	TTL time.Duration
	// interval of the background expiry sweep. Zero or negative disables the sweep; expired entries are then only removed lazily on read.
	Resolution time.Duration
	// if true, a successful Get resets the entry's age
	RefreshOnRead bool
}

// Sensible defaults for the mapping cache: 10k entries, one week TTL, sweep every minute, refresh on read.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:      DefaultCacheCapacity,
		TTL:           DefaultCacheTTL,
		Resolution:    DefaultCacheResolution,
		RefreshOnRead: true,
	}
}

type CacheStats struct {
	Size     int     `json:"size"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRatio float64 `json:"hitRatio"`
}

type cacheEntry struct {
	value   string
	expires time.Time
}

// Bounded string-to-string cache with per-entry expiry.
//
// All operations take a single lock, and never block on I/O. If configured with a Resolution, a sweeper goroutine is started by the constructor and runs until [ExpiringCache.Close].
type ExpiringCache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, cacheEntry]
	ttl     time.Duration
	refresh bool
	hits    uint64
	misses  uint64

	// overridden in tests
	now func() time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewExpiringCache(config CacheConfig) *ExpiringCache {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCacheCapacity
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheTTL
	}
	// only errors on non-positive size, which is handled above
	l, _ := simplelru.NewLRU[string, cacheEntry](config.Capacity, nil)
	c := &ExpiringCache{
		lru:     l,
		ttl:     config.TTL,
		refresh: config.RefreshOnRead,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if config.Resolution > 0 {
		c.wg.Add(1)
		go c.sweepLoop(config.Resolution)
	}
	return c
}

func (c *ExpiringCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return "", false
	}
	now := c.now()
	if !now.Before(e.expires) {
		c.lru.Remove(key)
		c.misses++
		return "", false
	}
	if c.refresh {
		e.expires = now.Add(c.ttl)
		c.lru.Add(key, e)
	}
	c.hits++
	return e.value, true
}

// Returns the value without updating recency, age, or hit counters.
func (c *ExpiringCache) Peek(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok || !c.now().Before(e.expires) {
		return "", false
	}
	return e.value, true
}

func (c *ExpiringCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cacheEntry{value: value, expires: c.now().Add(c.ttl)})
}

func (c *ExpiringCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Removes all entries. Hit and miss counters are kept.
func (c *ExpiringCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Snapshot of current keys, oldest first. May include expired entries which have not been swept yet.
func (c *ExpiringCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

func (c *ExpiringCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *ExpiringCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{
		Size:   c.lru.Len(),
		Hits:   c.hits,
		Misses: c.misses,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}

// Removes all expired entries, returning the number removed.
func (c *ExpiringCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if ok && !now.Before(e.expires) {
			c.lru.Remove(k)
			removed++
		}
	}
	return removed
}

// Stops the background sweeper, if any. Safe to call more than once. The cache remains usable afterwards, with lazy expiry only.
func (c *ExpiringCache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

func (c *ExpiringCache) sweepLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				cacheSweptEntries.Add(float64(n))
			}
		}
	}
}
