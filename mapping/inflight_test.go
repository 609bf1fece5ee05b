package mapping

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInflightAcquireRelease(t *testing.T) {
	assert := assert.New(t)
	tr := NewInflightTracker()

	assert.True(tr.TryAcquire("a"))
	assert.False(tr.TryAcquire("a"))
	// distinct ids don't contend
	assert.True(tr.TryAcquire("b"))
	assert.Equal(2, tr.Len())

	tr.Release("a")
	assert.True(tr.TryAcquire("a"))
	tr.Release("a")
	tr.Release("b")
	assert.Equal(0, tr.Len())

	// releasing something not held is a no-op
	tr.Release("c")
}

func TestInflightAtomicAcquire(t *testing.T) {
	tr := NewInflightTracker()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if tr.TryAcquire("same") {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestInflightWait(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tr := NewInflightTracker()

	// nothing in flight: returns immediately
	assert.True(tr.Wait(ctx, "a", time.Hour))

	// bounded wait
	tr.TryAcquire("a")
	start := time.Now()
	assert.False(tr.Wait(ctx, "a", 20*time.Millisecond))
	assert.GreaterOrEqual(time.Since(start), 20*time.Millisecond)

	// released while waiting
	go func() {
		time.Sleep(10 * time.Millisecond)
		tr.Release("a")
	}()
	assert.True(tr.Wait(ctx, "a", 10*time.Second))

	// context cancelled
	tr.TryAcquire("b")
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(tr.Wait(cctx, "b", 10*time.Second))
	tr.Release("b")
}
