package usagestats

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bouncestorage/bounce-stats/pkg/series"
)

var errTransport = errors.New("connection refused")

type fakeResponse struct {
	series []series.Series
	err    error
}

// fakeQuerier answers queries from a canned table. Unknown queries return no
// series. With jitter set, answers arrive after a random delay so completion
// order differs from dispatch order.
type fakeQuerier struct {
	mu        sync.Mutex
	responses map[series.Query]fakeResponse
	calls     []series.Query
	jitter    time.Duration
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{responses: make(map[series.Query]fakeResponse)}
}

func (f *fakeQuerier) on(q series.Query, s ...series.Series) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[q] = fakeResponse{series: s}
}

func (f *fakeQuerier) fail(q series.Query, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[q] = fakeResponse{err: err}
}

func (f *fakeQuerier) Query(ctx context.Context, q series.Query) ([]series.Series, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	resp := f.responses[q]
	jitter := f.jitter
	f.mu.Unlock()

	if jitter > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(jitter)))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp.series, resp.err
}

func (f *fakeQuerier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeQuerier) called(q series.Query) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == q {
			return true
		}
	}
	return false
}

type testEvent struct {
	ms   int64
	key  string
	size int64
}

func opsSeries(storeID int, container string, op series.Op, events ...testEvent) series.Series {
	s := series.Series{
		Name:    series.OpsName(storeID, container, op).String(),
		Columns: []string{series.ColTime, "sequence_number", series.ColObject, series.ColSize},
	}
	for i, e := range events {
		s.Points = append(s.Points, []any{
			json.Number(strconv.FormatInt(e.ms, 10)),
			json.Number(strconv.Itoa(i + 1)),
			e.key,
			json.Number(strconv.FormatInt(e.size, 10)),
		})
	}
	return s
}

func snapshotSeries(storeID int, container string, ms, size, objects int64) series.Series {
	return series.Series{
		Name:    series.SnapshotName(storeID, container).String(),
		Columns: []string{series.ColTime, "sequence_number", series.ColSize, series.ColObjects},
		Points: [][]any{{
			json.Number(strconv.FormatInt(ms, 10)),
			json.Number("1"),
			json.Number(strconv.FormatInt(size, 10)),
			json.Number(strconv.FormatInt(objects, 10)),
		}},
	}
}

func msTime(ms int64) *time.Time {
	t := time.UnixMilli(ms).UTC()
	return &t
}

// waitRun waits for r with a deadline so a hung run fails the test instead of
// the whole package.
func waitRun(t *testing.T, r *Run) []ObjectStoreStats {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := r.Wait(ctx)
	if err != nil {
		t.Fatalf("run did not complete: %v (pending %d)", err, r.Pending())
	}
	return results
}

type completionCounter struct {
	mu    sync.Mutex
	calls []Completion
}

func (c *completionCounter) NotifyComplete(_ context.Context, comp Completion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, comp)
	return nil
}

func (c *completionCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
