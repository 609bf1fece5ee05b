// Package pebblestore persists PN/LID mapping records in a local pebble database.
package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/lidmap/mapping"

	"github.com/cockroachdb/pebble"
)

// Store keeps mapping records in pebble.
// Key schema:
// {collection} 0x00 {kind byte} {user} : {opposite user}
// kind byte is 'F' for forward (PN user) and 'R' for reverse (LID user) records
type Store struct {
	db  *pebble.DB
	log *slog.Logger
}

var _ mapping.KeyValueStore = (*Store)(nil)

func Open(pebblePath string, logger *slog.Logger) (*Store, error) {
	db, err := pebble.Open(pebblePath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: could not open db, %w", pebblePath, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:  db,
		log: logger.With("store", "pebble"),
	}, nil
}

func (s *Store) Close() error {
	err := s.db.Flush()
	if err != nil {
		s.log.Error("pebble flush", "err", err)
	}
	err = s.db.Close()
	if err != nil {
		s.log.Error("pebble close", "err", err)
	}
	return err
}

func kindByte(k mapping.KeyKind) (byte, error) {
	switch k {
	case mapping.KeyForward:
		return 'F', nil
	case mapping.KeyReverse:
		return 'R', nil
	default:
		return 0, fmt.Errorf("unknown record kind: %d", k)
	}
}

func makeRecordKey(collection string, key mapping.RecordKey) ([]byte, error) {
	kb, err := kindByte(key.Kind)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(collection)+2+len(key.User))
	copy(out, collection)
	pos := len(collection)
	out[pos] = 0
	out[pos+1] = kb
	copy(out[pos+2:], key.User)
	return out, nil
}

func (s *Store) Get(ctx context.Context, collection string, keys []mapping.RecordKey) (map[mapping.RecordKey]string, error) {
	out := make(map[mapping.RecordKey]string, len(keys))
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dbKey, err := makeRecordKey(collection, k)
		if err != nil {
			return nil, err
		}
		val, closer, err := s.db.Get(dbKey)
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pebble get %s/%s: %w", k.Kind, k.User, err)
		}
		// value is only valid until closer is closed
		out[k] = string(val)
		closer.Close()
	}
	return out, nil
}

// Collects every write into one pebble batch, committed (synced) only if fn succeeds.
func (s *Store) Transaction(ctx context.Context, collection string, fn func(ctx context.Context, tx mapping.Txn) error) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	tx := &txn{batch: batch}
	if err := fn(ctx, tx); err != nil {
		tx.done = true
		return err
	}
	tx.done = true
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}
	s.log.Debug("committed mapping batch", "collection", collection, "records", tx.count)
	return nil
}

type txn struct {
	batch *pebble.Batch
	count int
	done  bool
}

func (tx *txn) Set(collection string, records map[mapping.RecordKey]string) error {
	if tx.done {
		return mapping.ErrTxnClosed
	}
	for k, v := range records {
		dbKey, err := makeRecordKey(collection, k)
		if err != nil {
			return err
		}
		if err := tx.batch.Set(dbKey, []byte(v), nil); err != nil {
			return fmt.Errorf("pebble batch set: %w", err)
		}
		tx.count++
	}
	return nil
}

// Counts forward and reverse records in a collection.
func (s *Store) Count(ctx context.Context, collection string) (forward, reverse int, err error) {
	prefix := append([]byte(collection), 0)
	upper := append([]byte(collection), 1)
	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("mapping iter start, %w", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) <= len(prefix) {
			continue
		}
		switch key[len(prefix)] {
		case 'F':
			forward++
		case 'R':
			reverse++
		}
	}
	return forward, reverse, iter.Error()
}
