package mapping

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(capacity int, ttl time.Duration, refresh bool) (*ExpiringCache, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewExpiringCache(CacheConfig{
		Capacity:      capacity,
		TTL:           ttl,
		RefreshOnRead: refresh,
	})
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheBasics(t *testing.T) {
	assert := assert.New(t)
	c, _ := newTestCache(10, time.Hour, true)
	defer c.Close()

	_, ok := c.Get("pn:1")
	assert.False(ok)

	c.Set("pn:1", "100")
	c.Set("lid:100", "1")
	v, ok := c.Get("pn:1")
	assert.True(ok)
	assert.Equal("100", v)
	assert.Equal(2, c.Len())
	assert.ElementsMatch([]string{"pn:1", "lid:100"}, c.Keys())

	assert.True(c.Delete("pn:1"))
	assert.False(c.Delete("pn:1"))
	_, ok = c.Get("pn:1")
	assert.False(ok)

	c.Clear()
	assert.Equal(0, c.Len())

	stats := c.Stats()
	assert.Equal(uint64(1), stats.Hits)
	assert.Equal(uint64(2), stats.Misses)
	assert.InDelta(1.0/3.0, stats.HitRatio, 0.0001)
}

func TestCacheExpiry(t *testing.T) {
	assert := assert.New(t)
	c, now := newTestCache(10, time.Minute, false)
	defer c.Close()

	c.Set("a", "1")
	*now = now.Add(59 * time.Second)
	v, ok := c.Get("a")
	assert.True(ok)
	assert.Equal("1", v)

	// without refresh-on-read, the read above didn't extend the entry
	*now = now.Add(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(ok)
	// expired entries are removed on read
	assert.Equal(0, c.Len())
}

func TestCacheRefreshOnRead(t *testing.T) {
	assert := assert.New(t)
	c, now := newTestCache(10, time.Minute, true)
	defer c.Close()

	c.Set("a", "1")
	for i := 0; i < 5; i++ {
		*now = now.Add(50 * time.Second)
		_, ok := c.Get("a")
		assert.True(ok)
	}
	*now = now.Add(61 * time.Second)
	_, ok := c.Get("a")
	assert.False(ok)
}

func TestCacheCapacity(t *testing.T) {
	assert := assert.New(t)
	c, _ := newTestCache(3, time.Hour, true)
	defer c.Close()

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")
	// touch "a" so "b" becomes least recently used
	_, ok := c.Get("a")
	assert.True(ok)
	c.Set("d", "4")

	assert.Equal(3, c.Len())
	_, ok = c.Peek("b")
	assert.False(ok)
	_, ok = c.Peek("a")
	assert.True(ok)
	_, ok = c.Peek("d")
	assert.True(ok)
}

func TestCacheSweep(t *testing.T) {
	assert := assert.New(t)
	c, now := newTestCache(10, time.Minute, true)
	defer c.Close()

	c.Set("old1", "x")
	c.Set("old2", "x")
	*now = now.Add(30 * time.Second)
	c.Set("new", "x")
	*now = now.Add(31 * time.Second)

	assert.Equal(2, c.Sweep())
	assert.Equal([]string{"new"}, c.Keys())
	// sweeping doesn't count as reads
	assert.Equal(uint64(0), c.Stats().Misses)
}

func TestCacheBackgroundSweep(t *testing.T) {
	assert := assert.New(t)
	c := NewExpiringCache(CacheConfig{
		Capacity:   10,
		TTL:        10 * time.Millisecond,
		Resolution: 5 * time.Millisecond,
	})
	c.Set("a", "1")
	assert.Eventually(func() bool {
		return c.Len() == 0
	}, time.Second, 5*time.Millisecond)

	c.Close()
	// closing twice is fine, and the cache still works
	c.Close()
	c.Set("b", "2")
	v, ok := c.Get("b")
	assert.True(ok)
	assert.Equal("2", v)
}

func TestCacheDefaults(t *testing.T) {
	assert := assert.New(t)
	c := NewExpiringCache(CacheConfig{})
	defer c.Close()
	assert.Equal(DefaultCacheTTL, c.ttl)
	for i := 0; i < DefaultCacheCapacity+5; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v")
	}
	assert.Equal(DefaultCacheCapacity, c.Len())
}

func TestCacheConcurrent(t *testing.T) {
	c := NewExpiringCache(CacheConfig{Capacity: 100, TTL: time.Hour, Resolution: time.Millisecond, RefreshOnRead: true})
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				k := fmt.Sprintf("k%d", (i*j)%150)
				c.Set(k, "v")
				c.Get(k)
				if j%10 == 0 {
					c.Delete(k)
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 100)
}
