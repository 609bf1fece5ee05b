package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bluesky-social/lidmap/mapping"

	"github.com/stretchr/testify/assert"
)

type countingLookup struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *countingLookup) Lookup(ctx context.Context, pn string) ([]mapping.LookupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return nil, errors.New("upstream down")
	}
	if pn == "1@s.whatsapp.net" {
		return []mapping.LookupResult{{Exists: true, LID: "2@lid"}}, nil
	}
	return []mapping.LookupResult{{Exists: false}}, nil
}

func TestLookupCacheLocal(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	inner := &countingLookup{}
	lc := NewLookupCache(inner.Lookup, nil, time.Hour, time.Minute, 1000)

	for i := 0; i < 3; i++ {
		res, err := lc.Lookup(ctx, "1@s.whatsapp.net")
		assert.NoError(err)
		assert.Equal([]mapping.LookupResult{{Exists: true, LID: "2@lid"}}, res)
	}
	assert.Equal(1, inner.calls)

	res, err := lc.Lookup(ctx, "3@s.whatsapp.net")
	assert.NoError(err)
	assert.False(res[0].Exists)
	_, err = lc.Lookup(ctx, "3@s.whatsapp.net")
	assert.NoError(err)
	assert.Equal(2, inner.calls)

	assert.NoError(lc.Purge(ctx, "1@s.whatsapp.net"))
	_, err = lc.Lookup(ctx, "1@s.whatsapp.net")
	assert.NoError(err)
	assert.Equal(3, inner.calls)
}

func TestLookupCacheErrorsNotCached(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	inner := &countingLookup{fail: true}
	lc := NewLookupCache(inner.Lookup, nil, time.Hour, time.Minute, 1000)

	_, err := lc.Lookup(ctx, "1@s.whatsapp.net")
	assert.Error(err)
	_, err = lc.Lookup(ctx, "1@s.whatsapp.net")
	assert.Error(err)
	assert.Equal(2, inner.calls)

	inner.fail = false
	res, err := lc.Lookup(ctx, "1@s.whatsapp.net")
	assert.NoError(err)
	assert.True(res[0].Exists)
}

func TestLookupCacheStaleness(t *testing.T) {
	assert := assert.New(t)
	lc := NewLookupCache(nil, nil, time.Hour, time.Minute, 10)

	hit := lookupEntry{Updated: time.Now().Add(-30 * time.Minute), Results: []mapping.LookupResult{{Exists: true, LID: "2@lid"}}}
	miss := lookupEntry{Updated: time.Now().Add(-30 * time.Minute), Results: []mapping.LookupResult{{Exists: false}}}
	assert.False(lc.isStale(&hit))
	assert.True(lc.isStale(&miss))
}

func TestLookupCacheLocalKeepsHitsPastMissTTL(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	inner := &countingLookup{}
	lc := NewLookupCache(inner.Lookup, nil, 5*time.Second, 50*time.Millisecond, 1000)

	_, err := lc.Lookup(ctx, "1@s.whatsapp.net")
	assert.NoError(err)
	_, err = lc.Lookup(ctx, "3@s.whatsapp.net")
	assert.NoError(err)
	assert.Equal(2, inner.calls)

	time.Sleep(200 * time.Millisecond)

	// positive answer still cached, negative answer expired
	res, err := lc.Lookup(ctx, "1@s.whatsapp.net")
	assert.NoError(err)
	assert.True(res[0].Exists)
	assert.Equal(2, inner.calls)
	_, err = lc.Lookup(ctx, "3@s.whatsapp.net")
	assert.NoError(err)
	assert.Equal(3, inner.calls)
}
