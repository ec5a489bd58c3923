package usagestats

import (
	"context"

	"github.com/bouncestorage/bounce-stats/internal/logctx"
	"github.com/bouncestorage/bounce-stats/pkg/series"
)

// mergeStore queries the latest snapshot of every known container of store,
// seeds acc with them, and replays the events recorded since each snapshot.
// A final wildcard sweep picks up containers that have activity but no
// snapshot yet. The caller has already registered this query with the tracker.
func (r *Run) mergeStore(ctx context.Context, store ObjectStore, acc *accumulator) {
	defer r.tracker.Done()

	log := logctx.FromContext(ctx)
	q := series.SnapshotQuery(store.ID)

	result, err := r.querier.Query(ctx, q)
	if err != nil {
		log.Error().Err(err).Str("query", q.String()).Msg("snapshot query failed")
		return
	}

	snapshots := make([]series.Snapshot, 0, len(result))
	for _, s := range result {
		snap, ok, err := s.LatestSnapshot()
		if err != nil {
			log.Warn().Err(err).Msg("skipping snapshot series")
			continue
		}
		if !ok {
			continue
		}
		if snap.StoreID != store.ID {
			log.Warn().Str("series", s.Name).Msg("skipping snapshot series outside query scope")
			continue
		}
		snapshots = append(snapshots, snap)
	}

	known := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		acc.seed(snap.Size, snap.Objects)
		known = append(known, snap.Container)
	}

	for _, snap := range snapshots {
		since := snap.Timestamp
		r.updateContainer(ctx, acc, containerScope{
			store:     store,
			container: snap.Container,
			since:     &since,
		})
	}

	r.updateContainer(ctx, acc, containerScope{
		store:     store,
		container: series.AnyContainer,
		exclude:   known,
	})

	log.Debug().
		Int("known_containers", len(known)).
		Msg("snapshot merged")
}
