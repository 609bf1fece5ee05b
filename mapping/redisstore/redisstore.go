// Package redisstore keeps PN/LID mapping records in Redis, and can share external lookup results between processes.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/lidmap/mapping"

	"github.com/redis/go-redis/v9"
)

// prefix string for all the Redis keys this store uses
var redisStorePrefix string = "lidmap/"

// Stores each collection as a single Redis hash. Field names are "f:{pn user}" for forward records and "r:{lid user}" for reverse records.
type Store struct {
	rdb *redis.Client
	log *slog.Logger
}

var _ mapping.KeyValueStore = (*Store)(nil)

// `redisURL` contains all the redis connection config options.
func New(redisURL string, logger *slog.Logger) (*Store, error) {
	rdb, err := Connect(context.TODO(), redisURL)
	if err != nil {
		return nil, err
	}
	return NewFromClient(rdb, logger), nil
}

func NewFromClient(rdb *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rdb: rdb,
		log: logger.With("store", "redis"),
	}
}

// Parses the URL, creates a client, and checks the connection.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("could not configure redis mapping store: %w", err)
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("could not connect to redis mapping store: %w", err)
	}
	return rdb, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Client() *redis.Client {
	return s.rdb
}

func hashKey(collection string) string {
	return redisStorePrefix + collection
}

func fieldName(k mapping.RecordKey) (string, error) {
	switch k.Kind {
	case mapping.KeyForward:
		return "f:" + k.User, nil
	case mapping.KeyReverse:
		return "r:" + k.User, nil
	default:
		return "", fmt.Errorf("unknown record kind: %d", k.Kind)
	}
}

func (s *Store) Get(ctx context.Context, collection string, keys []mapping.RecordKey) (map[mapping.RecordKey]string, error) {
	out := make(map[mapping.RecordKey]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	fields := make([]string, len(keys))
	for i, k := range keys {
		f, err := fieldName(k)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}

	vals, err := s.rdb.HMGet(ctx, hashKey(collection), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mapping read failed: %w", err)
	}
	for i, v := range vals {
		// missing fields come back as nil
		str, ok := v.(string)
		if !ok || str == "" {
			continue
		}
		out[keys[i]] = str
	}
	return out, nil
}

// Buffers writes, then applies them all in one MULTI/EXEC block if fn succeeds.
func (s *Store) Transaction(ctx context.Context, collection string, fn func(ctx context.Context, tx mapping.Txn) error) error {
	t := &txn{pending: make(map[string]map[string]any)}
	err := fn(ctx, t)
	t.done = true
	if err != nil {
		return err
	}
	if len(t.pending) == 0 {
		return nil
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, fields := range t.pending {
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mapping transaction failed: %w", err)
	}
	s.log.Debug("committed mapping batch", "collection", collection, "hashes", len(t.pending))
	return nil
}

type txn struct {
	pending map[string]map[string]any
	done    bool
}

func (t *txn) Set(collection string, records map[mapping.RecordKey]string) error {
	if t.done {
		return mapping.ErrTxnClosed
	}
	key := hashKey(collection)
	fields, ok := t.pending[key]
	if !ok {
		fields = make(map[string]any, len(records))
		t.pending[key] = fields
	}
	for k, v := range records {
		f, err := fieldName(k)
		if err != nil {
			return err
		}
		fields[f] = v
	}
	return nil
}

// Removes every record in a collection.
func (s *Store) Purge(ctx context.Context, collection string) error {
	return s.rdb.Del(ctx, hashKey(collection)).Err()
}
