package mapping

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lidmap_cache_hits",
	Help: "Number of mapping cache hits",
}, []string{"direction"})

var cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lidmap_cache_misses",
	Help: "Number of mapping cache misses",
}, []string{"direction"})

var cacheSweptEntries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lidmap_cache_swept_entries",
	Help: "Number of expired cache entries removed by the background sweep",
})

var storeReadErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lidmap_store_read_errors",
	Help: "Number of failed reads against the mapping store",
})

var resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lidmap_resolutions",
	Help: "Mapping resolutions, by direction and the source which answered",
}, []string{"direction", "source"})

var externalLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lidmap_external_lookups",
	Help: "External LID lookups, by outcome",
}, []string{"status"})

var externalLookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "lidmap_external_lookup_duration",
	Help:    "Time to complete an external LID lookup",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 20),
}, []string{"status"})

var externalRequestsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lidmap_external_requests_coalesced",
	Help: "Number of external lookups skipped because the same PN was already in flight",
})

var mappingsStored = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lidmap_mappings_stored",
	Help: "Number of PN/LID pairs written to the store",
})

var mappingsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lidmap_mappings_skipped",
	Help: "Number of PN/LID pairs not written, by reason",
}, []string{"reason"})

var storeTransactionErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lidmap_store_transaction_errors",
	Help: "Number of failed mapping store transactions",
})
