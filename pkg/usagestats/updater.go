package usagestats

import (
	"context"
	"slices"
	"time"

	"github.com/bouncestorage/bounce-stats/internal/logctx"
	"github.com/bouncestorage/bounce-stats/pkg/series"
)

// containerScope selects the ops series replayed into a store's totals.
type containerScope struct {
	store     ObjectStore
	container string     // exact name or series.AnyContainer
	since     *time.Time // nil replays all history
	exclude   []string   // containers already seeded from a snapshot
}

// sizeLookups pairs each replayed operation with the sign of its contribution.
var sizeLookups = []struct {
	op   series.Op
	sign int64
}{
	{series.OpPut, 1},
	{series.OpDelete, -1},
}

// updateContainer dispatches one PUT and one DELETE query for scope and
// applies the deduplicated totals to acc. It returns as soon as both queries
// are registered with the tracker.
func (r *Run) updateContainer(ctx context.Context, acc *accumulator, scope containerScope) {
	ctx = logctx.WithContainer(ctx, scope.container)

	r.tracker.Add(len(sizeLookups))
	for _, lookup := range sizeLookups {
		q := series.OpsQuery(scope.store.ID, scope.container, lookup.op, scope.since)
		go func() {
			defer r.tracker.Done()
			r.applyOps(ctx, acc, scope, lookup.op, lookup.sign, q)
		}()
	}
}

func (r *Run) applyOps(ctx context.Context, acc *accumulator, scope containerScope, op series.Op, sign int64, q series.Query) {
	log := logctx.FromContext(ctx).With().Str("op", string(op)).Logger()

	result, err := r.querier.Query(ctx, q)
	if err != nil {
		log.Error().Err(err).Str("query", q.String()).Msg("ops query failed")
		return
	}

	for _, s := range result {
		name, err := series.ParseName(s.Name)
		if err != nil {
			log.Warn().Err(err).Msg("skipping series")
			continue
		}
		if name.Kind != series.KindOps || name.StoreID != scope.store.ID || name.Op != op {
			log.Warn().Str("series", s.Name).Msg("skipping series outside query scope")
			continue
		}
		// A wildcard sweep also matches containers already seeded from
		// their snapshot; those were replayed by their own scoped query.
		if slices.Contains(scope.exclude, name.Container) {
			continue
		}

		events, err := s.SizeEvents()
		if err != nil {
			log.Error().Err(err).Msg("decode size events")
			continue
		}
		if len(events) == 0 {
			continue
		}

		delta := sign * AggregateSizes(events)
		acc.addSize(delta)
		log.Debug().
			Str("series_container", name.Container).
			Int("events", len(events)).
			Int64("delta", delta).
			Msg("applied size events")
	}
}
