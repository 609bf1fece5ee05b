package mapping

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Resolves many PN identifiers concurrently. Every distinct input is a key in the returned map; inputs which could not be resolved (for any reason) map to empty string. Never fails as a whole.
func (r *Resolver) LIDsForPNs(ctx context.Context, pns []string, opts ResolveOptions) map[string]string {
	return r.resolveMany(ctx, pns, pnToLID, opts)
}

// Resolves many LID identifiers concurrently. Same result conventions as [Resolver.LIDsForPNs].
func (r *Resolver) PNsForLIDs(ctx context.Context, lids []string, opts ResolveOptions) map[string]string {
	return r.resolveMany(ctx, lids, lidToPN, opts)
}

func (r *Resolver) resolveMany(ctx context.Context, ids []string, d direction, opts ResolveOptions) map[string]string {
	out := make(map[string]string, len(ids))
	var mu sync.Mutex
	var eg errgroup.Group
	if r.bulkConcurrency > 0 {
		eg.SetLimit(r.bulkConcurrency)
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		eg.Go(func() error {
			res, err := r.resolve(ctx, id, d, opts)
			if err != nil && !errors.Is(err, ErrNotFound) {
				r.logger.Warn("bulk resolution failed", "direction", d.name, "jid", id, "err", err)
			}
			mu.Lock()
			out[id] = res
			mu.Unlock()
			// errors are recorded per-id, never returned, so one failure doesn't cancel the rest
			return nil
		})
	}
	_ = eg.Wait()
	return out
}
