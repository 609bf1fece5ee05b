package mapping

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Tracks identifiers with an external lookup in progress, so that only one lookup per identifier runs at a time.
//
// This is not a global lock: distinct identifiers never contend.
type InflightTracker struct {
	pending *xsync.MapOf[string, chan struct{}]
}

func NewInflightTracker() *InflightTracker {
	return &InflightTracker{
		pending: xsync.NewMapOf[string, chan struct{}](),
	}
}

// Atomically marks id as in-flight. Returns false if it already was, in which case the caller must not start another lookup.
func (t *InflightTracker) TryAcquire(id string) bool {
	_, loaded := t.pending.LoadOrStore(id, make(chan struct{}))
	return !loaded
}

// Clears the in-flight mark for id and wakes any waiters. Must be called exactly once per successful TryAcquire.
func (t *InflightTracker) Release(id string) {
	ch, ok := t.pending.LoadAndDelete(id)
	if ok {
		close(ch)
	}
}

// Blocks until the in-flight lookup for id is released, max has elapsed, or ctx is done, whichever comes first. Returns true only if the lookup was released (or was not in flight to begin with).
func (t *InflightTracker) Wait(ctx context.Context, id string, max time.Duration) bool {
	ch, ok := t.pending.Load(id)
	if !ok {
		return true
	}
	timer := time.NewTimer(max)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (t *InflightTracker) Len() int {
	return t.pending.Size()
}
