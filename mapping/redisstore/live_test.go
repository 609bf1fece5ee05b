package redisstore

import (
	"context"
	"os"
	"testing"

	"github.com/bluesky-social/lidmap/mapping"
	"github.com/bluesky-social/lidmap/mapping/storetest"

	"github.com/stretchr/testify/assert"
)

// eg "redis://localhost:6379/0"; tests which need a server are skipped when unset
func testRedisURL(t *testing.T) string {
	u := os.Getenv("LIDMAP_TEST_REDIS_URL")
	if u == "" {
		t.Skip("LIDMAP_TEST_REDIS_URL not set; skipping live redis test")
	}
	return u
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	s, err := New(testRedisURL(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	for _, c := range []string{"missing-coll", "basic", "overwrite", "rollback", "coll-one", "coll-two"} {
		assert.NoError(t, s.Purge(ctx, c))
	}
	storetest.RunStoreTests(t, s)
}

func TestRedisResolver(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, err := New(testRedisURL(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	assert.NoError(s.Purge(ctx, "resolver-test"))

	r := mapping.NewResolver(s, nil, mapping.Config{Collection: "resolver-test"})
	defer r.Close()
	res, err := r.StoreMappings(ctx, []mapping.Pair{{PN: "1@s.whatsapp.net", LID: "2@lid"}}, mapping.StoreOptions{SkipCache: true})
	assert.NoError(err)
	assert.Equal(1, res.Stored)

	lid, err := r.LIDForPN(ctx, "1:2@s.whatsapp.net", mapping.ResolveOptions{SkipCache: true})
	assert.NoError(err)
	assert.Equal("2:2@lid", lid)
}

func TestFieldNames(t *testing.T) {
	assert := assert.New(t)

	f, err := fieldName(mapping.ForwardKey("123"))
	assert.NoError(err)
	assert.Equal("f:123", f)
	f, err = fieldName(mapping.ReverseKey("123"))
	assert.NoError(err)
	assert.Equal("r:123", f)
	_, err = fieldName(mapping.RecordKey{User: "123"})
	assert.Error(err)
	assert.Equal("lidmap/lid-mapping", hashKey(mapping.DefaultCollection))
}
