package usagestats

import (
	"context"
	"sync"
	"sync/atomic"
)

// Tracker counts in-flight queries of one run and signals once when the count
// returns to zero.
//
// Add must be called before the work it accounts for is dispatched, and a
// handler that dispatches follow-up work must Add it before calling its own
// Done. With that ordering zero is reached only after the last query.
type Tracker struct {
	pending    atomic.Int64
	done       chan struct{}
	once       sync.Once
	onComplete func()
}

// NewTracker returns a tracker that runs onComplete (may be nil) when the
// pending count first drops to zero, then closes Completed.
func NewTracker(onComplete func()) *Tracker {
	return &Tracker{
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
}

// Add registers n queries about to be dispatched.
func (t *Tracker) Add(n int) {
	if t.pending.Add(int64(n)) < 0 {
		panic("usagestats: negative pending query count")
	}
}

// Done records the terminal outcome of one query, success or failure.
func (t *Tracker) Done() {
	n := t.pending.Add(-1)
	if n < 0 {
		panic("usagestats: Tracker.Done called more times than Add")
	}
	if n == 0 {
		t.once.Do(t.complete)
	}
}

func (t *Tracker) complete() {
	if t.onComplete != nil {
		t.onComplete()
	}
	close(t.done)
}

// Pending returns the number of queries still in flight.
func (t *Tracker) Pending() int64 {
	return t.pending.Load()
}

// Completed is closed after the count reached zero and onComplete returned.
func (t *Tracker) Completed() <-chan struct{} {
	return t.done
}

// Wait blocks until completion or until ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
