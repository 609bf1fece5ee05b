package mapping

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrTxnClosed = errors.New("transaction already completed")

// In-memory [KeyValueStore], for use in tests and ephemeral deployments.
//
// Counts Get and Transaction calls, which tests use to verify cache behavior. Setting FailCommits causes every commit to fail with that error.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]map[RecordKey]string

	FailCommits error

	gets         atomic.Int64
	transactions atomic.Int64
}

var _ KeyValueStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string]map[RecordKey]string),
	}
}

func (s *MemStore) Get(ctx context.Context, collection string, keys []RecordKey) (map[RecordKey]string, error) {
	s.gets.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[RecordKey]string, len(keys))
	coll := s.collections[collection]
	for _, k := range keys {
		if v, ok := coll[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MemStore) Transaction(ctx context.Context, collection string, fn func(ctx context.Context, tx Txn) error) error {
	s.transactions.Add(1)
	tx := &memTxn{pending: make(map[string]map[RecordKey]string)}
	err := fn(ctx, tx)
	tx.done = true
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailCommits != nil {
		return s.FailCommits
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, records := range tx.pending {
		coll, ok := s.collections[name]
		if !ok {
			coll = make(map[RecordKey]string, len(records))
			s.collections[name] = coll
		}
		for k, v := range records {
			coll[k] = v
		}
	}
	return nil
}

// Number of Get calls made against this store.
func (s *MemStore) Gets() int64 {
	return s.gets.Load()
}

// Number of Transaction calls made against this store, including failed ones.
func (s *MemStore) Transactions() int64 {
	return s.transactions.Load()
}

// Total number of records across all collections.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, coll := range s.collections {
		n += len(coll)
	}
	return n
}

type memTxn struct {
	pending map[string]map[RecordKey]string
	done    bool
}

func (tx *memTxn) Set(collection string, records map[RecordKey]string) error {
	if tx.done {
		return ErrTxnClosed
	}
	coll, ok := tx.pending[collection]
	if !ok {
		coll = make(map[RecordKey]string, len(records))
		tx.pending[collection] = coll
	}
	for k, v := range records {
		coll[k] = v
	}
	return nil
}
