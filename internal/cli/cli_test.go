package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bouncestorage/bounce-stats/pkg/report"
	"github.com/bouncestorage/bounce-stats/pkg/series"
	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
	"github.com/rs/zerolog"
)

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	for _, cmd := range []string{"collect", "serve"} {
		t.Run(cmd, func(t *testing.T) {
			err := Run([]string{cmd})
			if err == nil {
				t.Fatal("expected error with missing --config")
			}
			if !strings.Contains(err.Error(), "--config") {
				t.Errorf("expected '--config' error, got: %v", err)
			}
		})
	}
}

func TestCollectBadFormat(t *testing.T) {
	err := Run([]string{"collect", "--config", "x.yaml", "--format", "xml"})
	if err == nil {
		t.Fatal("expected error with bad --format")
	}
	if !strings.Contains(err.Error(), "--format") {
		t.Errorf("expected '--format' error, got: %v", err)
	}
}

func TestCollectUploadWithoutBucket(t *testing.T) {
	path := writeTestConfig(t, "http://127.0.0.1:1")
	err := Run([]string{"collect", "--config", path, "--upload"})
	if err == nil {
		t.Fatal("expected error with --upload and no bucket")
	}
	if !strings.Contains(err.Error(), "report.bucket") {
		t.Errorf("expected 'report.bucket' error, got: %v", err)
	}
}

// seriesStore answers the queries of one aggregation over store 1: a
// "photos" snapshot, newer photos PUTs, and a wildcard sweep that also finds
// an unsnapshotted "logs" container.
func seriesStore(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, `stats\.provider\.1\.`):
			fmt.Fprint(w, `[{"name":"stats.provider.1.container.photos",
				"columns":["time","sequence_number","size","objects"],
				"points":[[1000,1,100,5]]}]`)
		case strings.Contains(q, `container\.photos\.op\.PUT`):
			fmt.Fprint(w, `[{"name":"ops.provider.1.container.photos.op.PUT",
				"columns":["time","sequence_number","object","size"],
				"points":[[2000,1,"a",30],[2500,2,"a",30]]}]`)
		case strings.Contains(q, `container\..*\.op\.PUT`):
			fmt.Fprint(w, `[{"name":"ops.provider.1.container.photos.op.PUT",
				"columns":["time","sequence_number","object","size"],
				"points":[[10,1,"old",100]]},
				{"name":"ops.provider.1.container.logs.op.PUT",
				"columns":["time","sequence_number","object","size"],
				"points":[[20,1,"l1",7]]}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
}

func writeTestConfig(t *testing.T, influxURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bounce-stats.yaml")
	content := fmt.Sprintf(`
influx:
  url: %s
  database: bounce
object_stores:
  - id: 1
    nickname: aws-east
`, influxURL)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func executeRoot(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestCollectJSON(t *testing.T) {
	srv := seriesStore(t)
	defer srv.Close()

	parquetPath := filepath.Join(t.TempDir(), "report.parquet")
	out := executeRoot(t, "collect", "--config", writeTestConfig(t, srv.URL),
		"--format", "json", "--parquet", parquetPath)

	var c usagestats.Completion
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	want := usagestats.ObjectStoreStats{Key: "aws-east", Data: usagestats.Usage{Size: 137, Objects: 5}}
	if len(c.Results) != 1 || c.Results[0] != want {
		t.Errorf("results = %+v, want [%+v]", c.Results, want)
	}
	if c.RunID == "" {
		t.Error("RunID is empty")
	}

	rows, err := report.ReadParquetFile(parquetPath)
	if err != nil {
		t.Fatalf("ReadParquetFile: %v", err)
	}
	if len(rows) != 1 || rows[0].SizeBytes != 137 || rows[0].RunID != c.RunID {
		t.Errorf("parquet rows = %+v", rows)
	}
}

func TestCollectTable(t *testing.T) {
	srv := seriesStore(t)
	defer srv.Close()

	out := executeRoot(t, "collect", "--config", writeTestConfig(t, srv.URL))

	for _, want := range []string{"STORE", "aws-east", "137 B", "completed in"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestStatsHandler(t *testing.T) {
	srv := seriesStore(t)
	defer srv.Close()

	client, err := series.NewClient(series.ClientConfig{URL: srv.URL, Database: "bounce"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	agg := usagestats.NewAggregator(client)
	handler := statsHandler(agg)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before first run: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run := agg.GetStats(ctx, []usagestats.ObjectStore{{ID: 1, Nickname: "aws-east"}})
	if _, err := run.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var c usagestats.Completion
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if c.RunID != run.ID || len(c.Results) != 1 || c.Results[0].Data.Size != 137 {
		t.Errorf("body = %+v", c)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/stats", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestAggregateLoop(t *testing.T) {
	srv := seriesStore(t)
	defer srv.Close()

	client, err := series.NewClient(series.ClientConfig{URL: srv.URL, Database: "bounce"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	runs := make(chan usagestats.Completion, 16)
	agg := usagestats.NewAggregator(client, usagestats.WithNotifier(usagestats.NotifierFunc(
		func(_ context.Context, c usagestats.Completion) error {
			runs <- c
			return nil
		})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- aggregateLoop(ctx, agg, []usagestats.ObjectStore{{ID: 1, Nickname: "aws-east"}},
			10*time.Millisecond, nil, zerolog.Nop())
	}()

	for i := range 2 {
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d did not complete", i+1)
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("aggregateLoop = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("aggregateLoop did not stop after cancel")
	}
}
