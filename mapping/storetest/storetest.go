// Package storetest has shared behavior checks for [mapping.KeyValueStore] implementations.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/bluesky-social/lidmap/mapping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs the common store checks against a fresh, empty store.
func RunStoreTests(t *testing.T, store mapping.KeyValueStore) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, store) })
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, store) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, store) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, store) })
	t.Run("Collections", func(t *testing.T) { testCollections(t, store) })
}

func testGetMissing(t *testing.T, store mapping.KeyValueStore) {
	assert := assert.New(t)
	ctx := context.Background()

	found, err := store.Get(ctx, "missing-coll", []mapping.RecordKey{mapping.ForwardKey("5511999999999")})
	assert.NoError(err)
	assert.Empty(found)
}

func testSetAndGet(t *testing.T, store mapping.KeyValueStore) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	err := store.Transaction(ctx, "basic", func(ctx context.Context, tx mapping.Txn) error {
		return tx.Set("basic", map[mapping.RecordKey]string{
			mapping.ForwardKey("5511999999999"): "123456789",
			mapping.ReverseKey("123456789"):     "5511999999999",
			// same user string in both kinds must not collide
			mapping.ReverseKey("5511999999999"): "987654321",
		})
	})
	require.NoError(err)

	found, err := store.Get(ctx, "basic", []mapping.RecordKey{
		mapping.ForwardKey("5511999999999"),
		mapping.ReverseKey("123456789"),
		mapping.ReverseKey("5511999999999"),
		mapping.ForwardKey("123456789"),
	})
	require.NoError(err)
	assert.Equal(map[mapping.RecordKey]string{
		mapping.ForwardKey("5511999999999"): "123456789",
		mapping.ReverseKey("123456789"):     "5511999999999",
		mapping.ReverseKey("5511999999999"): "987654321",
	}, found)
}

func testOverwrite(t *testing.T, store mapping.KeyValueStore) {
	assert := assert.New(t)
	ctx := context.Background()

	for _, v := range []string{"111", "222"} {
		err := store.Transaction(ctx, "overwrite", func(ctx context.Context, tx mapping.Txn) error {
			return tx.Set("overwrite", map[mapping.RecordKey]string{mapping.ForwardKey("a"): v})
		})
		assert.NoError(err)
	}
	found, err := store.Get(ctx, "overwrite", []mapping.RecordKey{mapping.ForwardKey("a")})
	assert.NoError(err)
	assert.Equal("222", found[mapping.ForwardKey("a")])
}

func testRollback(t *testing.T, store mapping.KeyValueStore) {
	assert := assert.New(t)
	ctx := context.Background()
	abort := errors.New("abort")

	err := store.Transaction(ctx, "rollback", func(ctx context.Context, tx mapping.Txn) error {
		if err := tx.Set("rollback", map[mapping.RecordKey]string{mapping.ForwardKey("a"): "1"}); err != nil {
			return err
		}
		return abort
	})
	assert.ErrorIs(err, abort)

	found, err := store.Get(ctx, "rollback", []mapping.RecordKey{mapping.ForwardKey("a")})
	assert.NoError(err)
	assert.Empty(found)
}

func testCollections(t *testing.T, store mapping.KeyValueStore) {
	assert := assert.New(t)
	ctx := context.Background()

	err := store.Transaction(ctx, "coll-one", func(ctx context.Context, tx mapping.Txn) error {
		return tx.Set("coll-one", map[mapping.RecordKey]string{mapping.ForwardKey("a"): "1"})
	})
	assert.NoError(err)

	found, err := store.Get(ctx, "coll-two", []mapping.RecordKey{mapping.ForwardKey("a")})
	assert.NoError(err)
	assert.Empty(found)
	found, err = store.Get(ctx, "coll-one", []mapping.RecordKey{mapping.ForwardKey("a")})
	assert.NoError(err)
	assert.Equal("1", found[mapping.ForwardKey("a")])
}
