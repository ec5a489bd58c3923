package usagestats

import (
	"context"
	"sync"
	"time"

	"github.com/bouncestorage/bounce-stats/internal/logctx"
	"github.com/bouncestorage/bounce-stats/pkg/logging"
	"github.com/bouncestorage/bounce-stats/pkg/series"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Completion describes a finished run. It is handed to every Notifier.
type Completion struct {
	RunID       string             `json:"run_id"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Results     []ObjectStoreStats `json:"results"`
}

// Duration is how long the run took.
func (c Completion) Duration() time.Duration {
	return c.CompletedAt.Sub(c.StartedAt)
}

// Notifier receives the "stats complete" signal of each run, exactly once.
type Notifier interface {
	NotifyComplete(ctx context.Context, c Completion) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, c Completion) error

// NotifyComplete calls f.
func (f NotifierFunc) NotifyComplete(ctx context.Context, c Completion) error {
	return f(ctx, c)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNotifier adds a completion subscriber. Notifiers run sequentially on the
// goroutine that resolved the run's last query.
func WithNotifier(n Notifier) Option {
	return func(a *Aggregator) {
		a.notifiers = append(a.notifiers, n)
	}
}

// WithLogger overrides the aggregator's base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.log = l
	}
}

// Aggregator runs usage aggregations against a series store and keeps the
// result set of the most recently completed run.
type Aggregator struct {
	querier   series.Querier
	notifiers []Notifier
	log       zerolog.Logger

	mu         sync.RWMutex
	seq        uint64
	latestSeq  uint64
	latest     Completion
	haveLatest bool
}

// NewAggregator creates an aggregator that issues its queries through q.
func NewAggregator(q series.Querier, opts ...Option) *Aggregator {
	a := &Aggregator{
		querier: q,
		log:     logging.WithComponent("usagestats"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetStats starts an aggregation over stores and returns without waiting.
// The returned Run owns its own result set; callers must wait for Run.Done
// (or a Notifier) before treating the results as stable. Query failures are
// logged, never returned.
//
// Canceling ctx makes outstanding queries fail fast; they still count as
// completed, so the run always finishes.
func (a *Aggregator) GetStats(ctx context.Context, stores []ObjectStore) *Run {
	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	r := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		querier:   a.querier,
		seq:       seq,
		stores:    append([]ObjectStore(nil), stores...),
		accs:      make([]*accumulator, len(stores)),
	}
	ctx = logctx.WithLogger(ctx, a.log)
	ctx = logctx.WithRun(ctx, r.ID)
	r.tracker = NewTracker(func() { a.finish(ctx, r) })

	log := logctx.FromContext(ctx)
	log.Info().
		Int("object_stores", len(stores)).
		Msg("aggregation started")

	// Result entries exist from dispatch on, in the order of stores.
	for i, store := range r.stores {
		r.accs[i] = newAccumulator(store.Nickname)
	}

	// Hold the count above zero until every store is dispatched so an early
	// answer cannot complete the run.
	r.tracker.Add(1)
	for i, store := range r.stores {
		r.tracker.Add(1)
		go r.mergeStore(logctx.WithStore(ctx, store.ID, store.Nickname), store, r.accs[i])
	}
	r.tracker.Done()

	return r
}

func (a *Aggregator) finish(ctx context.Context, r *Run) {
	c := Completion{
		RunID:       r.ID,
		StartedAt:   r.StartedAt,
		CompletedAt: time.Now(),
		Results:     r.Results(),
	}
	r.completion = c

	a.mu.Lock()
	if r.seq > a.latestSeq {
		a.latestSeq = r.seq
		a.latest = c
		a.haveLatest = true
	}
	a.mu.Unlock()

	log := logctx.FromContext(ctx)
	log.Info().
		Int("object_stores", len(c.Results)).
		Dur("elapsed", c.Duration()).
		Msg("aggregation complete")

	for _, n := range a.notifiers {
		if err := n.NotifyComplete(ctx, c); err != nil {
			log.Error().Err(err).Msg("completion notifier failed")
		}
	}
}

// Result returns the result set of the most recently started run that has
// completed, or nil before any run completed.
func (a *Aggregator) Result() []ObjectStoreStats {
	c, ok := a.LastCompletion()
	if !ok {
		return nil
	}
	return c.Results
}

// LastCompletion returns the latest completed run, if any.
func (a *Aggregator) LastCompletion() (Completion, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.haveLatest {
		return Completion{}, false
	}
	c := a.latest
	c.Results = append([]ObjectStoreStats(nil), c.Results...)
	return c, true
}

// Run is the aggregation context of one GetStats call. It owns the tracker,
// the accumulators and the result set of that call only.
type Run struct {
	ID        string
	StartedAt time.Time

	querier    series.Querier
	tracker    *Tracker
	seq        uint64
	stores     []ObjectStore
	accs       []*accumulator
	completion Completion
}

// Done is closed once every query of the run resolved and notifiers returned.
func (r *Run) Done() <-chan struct{} {
	return r.tracker.Completed()
}

// Pending returns the number of queries still in flight.
func (r *Run) Pending() int64 {
	return r.tracker.Pending()
}

// Results returns a copy of the current totals, one entry per object store
// in the order they were passed to GetStats. Before Done they are partial.
func (r *Run) Results() []ObjectStoreStats {
	out := make([]ObjectStoreStats, len(r.accs))
	for i, acc := range r.accs {
		out[i] = acc.snapshot()
	}
	return out
}

// Wait blocks until the run completes and returns its final result set.
func (r *Run) Wait(ctx context.Context) ([]ObjectStoreStats, error) {
	if err := r.tracker.Wait(ctx); err != nil {
		return nil, err
	}
	return r.completion.Results, nil
}

// Completion returns the finished run. ok is false until Done is closed.
func (r *Run) Completion() (c Completion, ok bool) {
	select {
	case <-r.Done():
		return r.completion, true
	default:
		return Completion{}, false
	}
}
