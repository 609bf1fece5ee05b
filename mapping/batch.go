package mapping

import (
	"context"
	"fmt"

	"github.com/bluesky-social/lidmap/jid"

	"github.com/google/uuid"
)

// A PN and LID identifier for the same account. Either may carry a device or agent segment; only the user segments are stored.
type Pair struct {
	PN  string `json:"pn"`
	LID string `json:"lid"`
}

type StoreOptions struct {
	// write pairs even if an identical mapping is already known
	ForceUpdate bool
	// don't populate the cache after a successful commit
	SkipCache bool
	// identifier for logging; a random UUID if empty
	BatchID string
}

type StoreResult struct {
	Stored  int    `json:"stored"`
	BatchID string `json:"batchId"`
}

type userPair struct {
	pn  string
	lid string
}

// Validates and decodes a pair to bare users. Pairs with the two sides swapped are accepted.
func parsePair(p Pair) (userPair, error) {
	pn, lid := p.PN, p.LID
	if jid.IsLID(pn) && jid.IsPN(lid) {
		pn, lid = lid, pn
	}
	if !jid.IsPN(pn) || !jid.IsLID(lid) {
		return userPair{}, fmt.Errorf("%w: need one PN and one LID identifier", ErrInvalidIdentifier)
	}
	pj, err := jid.Parse(pn)
	if err != nil {
		return userPair{}, fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}
	lj, err := jid.Parse(lid)
	if err != nil {
		return userPair{}, fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}
	return userPair{pn: pj.User, lid: lj.User}, nil
}

// Validates and persists a batch of PN/LID pairs, in a single store transaction.
//
// Invalid pairs are logged and skipped. Unless ForceUpdate is set, pairs whose mapping is already known (in the cache or store) are skipped too. Having nothing to store is not an error.
//
// If the transaction fails, the returned error wraps ErrStoreTransaction, and the cache is not modified.
func (r *Resolver) StoreMappings(ctx context.Context, pairs []Pair, opts StoreOptions) (StoreResult, error) {
	batchID := opts.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	logger := r.logger.With("batch", batchID)

	var batch []userPair
	seen := make(map[userPair]bool, len(pairs))
	records := make(map[RecordKey]string, 2*len(pairs))
	for _, p := range pairs {
		up, err := parsePair(p)
		if err != nil {
			mappingsSkipped.WithLabelValues("invalid").Inc()
			logger.Warn("skipping invalid PN/LID pair", "pn", p.PN, "lid", p.LID, "err", err)
			continue
		}
		if seen[up] {
			mappingsSkipped.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[up] = true

		if !opts.ForceUpdate && r.mappingExists(ctx, up) {
			mappingsSkipped.WithLabelValues("exists").Inc()
			logger.Debug("mapping already exists, skipping", "pn_user", up.pn, "lid_user", up.lid)
			continue
		}

		batch = append(batch, up)
		records[ForwardKey(up.pn)] = up.lid
		records[ReverseKey(up.lid)] = up.pn
	}

	if len(batch) == 0 {
		logger.Debug("no valid mappings to store", "total", len(pairs))
		return StoreResult{BatchID: batchID}, nil
	}

	logger.Debug("storing mapping batch", "valid", len(batch), "total", len(pairs))
	err := r.store.Transaction(ctx, r.collection, func(ctx context.Context, tx Txn) error {
		return tx.Set(r.collection, records)
	})
	if err != nil {
		storeTransactionErrors.Inc()
		logger.Error("failed to store mappings", "err", err)
		return StoreResult{BatchID: batchID}, fmt.Errorf("%w: %w", ErrStoreTransaction, err)
	}

	for _, up := range batch {
		r.dropStaleCache(up)
		if !opts.SkipCache {
			r.cacheUserPair(up)
		}
	}
	mappingsStored.Add(float64(len(batch)))
	logger.Debug("stored mappings", "stored", len(batch))
	return StoreResult{Stored: len(batch), BatchID: batchID}, nil
}

// Whether the forward mapping for this PN user already points at this LID user. Store read failures count as "not known", so the pair gets (re-)written.
func (r *Resolver) mappingExists(ctx context.Context, up userPair) bool {
	if cached, ok := r.cache.Get(pnCacheKey(up.pn)); ok {
		return cached == up.lid
	}
	key := ForwardKey(up.pn)
	found, err := r.store.Get(ctx, r.collection, []RecordKey{key})
	if err != nil {
		storeReadErrors.Inc()
		r.logger.Warn("failed to check existing mapping", "pn_user", up.pn, "err", err)
		return false
	}
	return found[key] == up.lid
}

func (r *Resolver) cacheUserPair(up userPair) {
	r.cache.Set(pnCacheKey(up.pn), up.lid)
	r.cache.Set(lidCacheKey(up.lid), up.pn)
}

// Removes cached entries which contradict a newly written pair: either user's previous mapping, and the reverse entry of the previous partner.
func (r *Resolver) dropStaleCache(up userPair) {
	if oldLID, ok := r.cache.Peek(pnCacheKey(up.pn)); ok && oldLID != up.lid {
		r.cache.Delete(pnCacheKey(up.pn))
		if back, ok := r.cache.Peek(lidCacheKey(oldLID)); ok && back == up.pn {
			r.cache.Delete(lidCacheKey(oldLID))
		}
	}
	if oldPN, ok := r.cache.Peek(lidCacheKey(up.lid)); ok && oldPN != up.pn {
		r.cache.Delete(lidCacheKey(up.lid))
		if fwd, ok := r.cache.Peek(pnCacheKey(oldPN)); ok && fwd == up.lid {
			r.cache.Delete(pnCacheKey(oldPN))
		}
	}
}
