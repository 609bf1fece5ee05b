package mapping

import (
	"context"
	"time"

	"github.com/bluesky-social/lidmap/jid"
	"github.com/bluesky-social/lidmap/pkg/metrics"

	"go.opentelemetry.io/otel/attribute"
)

// Resolves a PN to a bare LID user via the external lookup, and persists what it finds. At most one lookup per PN user runs at a time; other callers wait briefly and then re-check the cache.
func (r *Resolver) fetchExternal(ctx context.Context, pn, pnUser string) string {
	if !r.inflight.TryAcquire(pnUser) {
		externalRequestsCoalesced.Inc()
		r.logger.Debug("external lookup already in progress", "pn_user", pnUser)
		r.inflight.Wait(ctx, pnUser, r.inflightWait)
		v, _ := r.cache.Get(pnCacheKey(pnUser))
		return v
	}
	defer r.inflight.Release(pnUser)

	ctx, span := tracer.Start(ctx, "externalLookup")
	defer span.End()

	r.logger.Debug("fetching LID from external lookup", "pn_user", pnUser)
	start := time.Now()
	lid, status := r.callLookup(ctx, pn)
	span.SetAttributes(attribute.String("status", status))
	externalLookups.WithLabelValues(status).Inc()
	externalLookupDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if lid == "" {
		return ""
	}

	lj, err := jid.Parse(lid)
	if err != nil {
		r.logger.Warn("external lookup returned unparseable LID", "pn", pn, "lid", lid, "err", err)
		return ""
	}

	_, err = r.StoreMappings(ctx, []Pair{{PN: pn, LID: lid}}, StoreOptions{})
	if err != nil {
		// the answer is still good for this caller
		r.logger.Error("failed to persist externally resolved mapping", "pn", pn, "lid", lid, "err", err)
	}
	return lj.User
}

// Returns the first result's LID (if it exists and looks like a LID), and a status label for metrics. A panicking lookup function is recovered and reported as an error.
func (r *Resolver) callLookup(ctx context.Context, pn string) (lid string, status string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("external LID lookup panicked", "pn", pn, "panic", rec)
			lid, status = "", metrics.StatusError
		}
	}()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.logger.Warn("external lookup rate limit wait failed", "pn", pn, "err", err)
			return "", metrics.StatusRateLimited
		}
	}

	results, err := r.lookup(ctx, pn)
	if err != nil {
		r.logger.Warn("external LID lookup failed", "pn", pn, "err", err)
		return "", metrics.StatusError
	}
	if len(results) == 0 || !results[0].Exists || results[0].LID == "" {
		return "", metrics.StatusNotFound
	}
	if !jid.IsLID(results[0].LID) {
		r.logger.Warn("external lookup returned non-LID identifier", "pn", pn, "lid", results[0].LID)
		return "", metrics.StatusInvalid
	}
	return results[0].LID, metrics.StatusOK
}
