package redisstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lidmap_lookup_cache_hits",
	Help: "Number of external lookup answers served from the shared cache",
})

var lookupCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lidmap_lookup_cache_misses",
	Help: "Number of external lookups which went to the upstream directory",
})
