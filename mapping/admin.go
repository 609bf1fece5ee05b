package mapping

import (
	"strings"
)

// Seeds the cache with already-known pairs, without touching the store. Invalid pairs are skipped. Returns the number of pairs loaded.
func (r *Resolver) Preload(pairs []Pair) int {
	loaded := 0
	for _, p := range pairs {
		up, err := parsePair(p)
		if err != nil {
			continue
		}
		r.dropStaleCache(up)
		r.cacheUserPair(up)
		loaded++
	}
	r.logger.Debug("preloaded mappings into cache", "loaded", loaded, "total", len(pairs))
	return loaded
}

// Removes cache entries whose key contains pattern, or every entry if pattern is empty. Cache keys look like "pn:<user>" and "lid:<user>". Returns the number of entries removed.
func (r *Resolver) ClearCache(pattern string) int {
	if pattern == "" {
		n := r.cache.Len()
		r.cache.Clear()
		r.logger.Debug("cleared entire mapping cache", "cleared", n)
		return n
	}
	cleared := 0
	for _, k := range r.cache.Keys() {
		if strings.Contains(k, pattern) && r.cache.Delete(k) {
			cleared++
		}
	}
	r.logger.Debug("cleared cache entries by pattern", "cleared", cleared, "pattern", pattern)
	return cleared
}

func (r *Resolver) CacheStats() CacheStats {
	return r.cache.Stats()
}
