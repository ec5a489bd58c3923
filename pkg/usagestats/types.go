// Package usagestats rebuilds current storage usage (bytes and object count)
// per object store from the operation history kept in the time-series store.
//
// Each known container contributes its latest baseline snapshot plus the PUT
// and DELETE size events recorded after it. Containers without a snapshot are
// discovered by a wildcard sweep that excludes every container already seeded,
// so each container reaches the totals through exactly one path.
//
// All queries of a run are fanned out concurrently and joined by a Tracker;
// the run's completion is signalled exactly once, after the last query
// resolved. Query failures are logged and absorbed: totals are best-effort
// estimates, never an audited ledger.
package usagestats

import "sync"

// ObjectStore identifies a backing storage provider instance.
type ObjectStore struct {
	ID       int    `json:"id" yaml:"id"`
	Nickname string `json:"nickname" yaml:"nickname"`
}

// Usage is a running total for one object store. Values are signed and never
// clamped: deletes replayed against a stale baseline may drive them negative.
type Usage struct {
	Size    int64 `json:"size"`
	Objects int64 `json:"objects"`
}

// ObjectStoreStats is one entry of a run's result set.
type ObjectStoreStats struct {
	Key  string `json:"key"`
	Data Usage  `json:"data"`
}

// accumulator is the mutable ObjectStoreStats of one store within one run.
// Only queries scoped to that store write to it.
type accumulator struct {
	mu    sync.Mutex
	stats ObjectStoreStats
}

func newAccumulator(nickname string) *accumulator {
	return &accumulator{stats: ObjectStoreStats{Key: nickname}}
}

func (a *accumulator) seed(size, objects int64) {
	a.mu.Lock()
	a.stats.Data.Size += size
	a.stats.Data.Objects += objects
	a.mu.Unlock()
}

func (a *accumulator) addSize(delta int64) {
	a.mu.Lock()
	a.stats.Data.Size += delta
	a.mu.Unlock()
}

func (a *accumulator) snapshot() ObjectStoreStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
