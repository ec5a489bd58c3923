package usagestats

import (
	"slices"

	"github.com/bouncestorage/bounce-stats/pkg/series"
)

// AggregateSizes returns the summed size of a batch of events, counting each
// key once with the size of its earliest occurrence. The same object may be
// reported several times within one query window (one event per shard), and
// only the first is authoritative.
//
// The store is expected to deliver events in timestamp order; a batch that is
// not is stably sorted first rather than trusted. The sign of the result is
// applied by the caller.
func AggregateSizes(events []series.SizeEvent) int64 {
	if !isChronological(events) {
		events = slices.Clone(events)
		slices.SortStableFunc(events, func(a, b series.SizeEvent) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}

	seen := make(map[string]struct{}, len(events))
	var total int64
	for _, e := range events {
		if _, ok := seen[e.Key]; ok {
			continue
		}
		seen[e.Key] = struct{}{}
		total += e.Size
	}
	return total
}

func isChronological(events []series.SizeEvent) bool {
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			return false
		}
	}
	return true
}
