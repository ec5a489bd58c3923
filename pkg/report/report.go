// Package report writes the result set of an aggregation run as Parquet or
// JSON and uploads Parquet reports to S3.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bouncestorage/bounce-stats/pkg/fileutil"
	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
	"github.com/parquet-go/parquet-go"
)

// Row is one object store of one run.
type Row struct {
	RunID         string `parquet:"run_id" json:"run_id"`
	CompletedAtMs int64  `parquet:"completed_at_ms" json:"completed_at_ms"`
	Store         string `parquet:"store" json:"store"`
	SizeBytes     int64  `parquet:"size_bytes" json:"size_bytes"`
	Objects       int64  `parquet:"objects" json:"objects"`
}

// Rows flattens a completed run into report rows, one per object store.
func Rows(c usagestats.Completion) []Row {
	rows := make([]Row, 0, len(c.Results))
	for _, s := range c.Results {
		rows = append(rows, Row{
			RunID:         c.RunID,
			CompletedAtMs: c.CompletedAt.UnixMilli(),
			Store:         s.Key,
			SizeBytes:     s.Data.Size,
			Objects:       s.Data.Objects,
		})
	}
	return rows
}

// WriteParquet writes the run as a Parquet file to w.
func WriteParquet(w io.Writer, c usagestats.Completion) error {
	if err := parquet.Write(w, Rows(c)); err != nil {
		return fmt.Errorf("write parquet report: %w", err)
	}
	return nil
}

// WriteParquetFile writes the run as a Parquet file at path, replacing any
// previous report only once the new one is complete.
func WriteParquetFile(path string, c usagestats.Completion) error {
	err := fileutil.WriteAtomic(path, func(tmpPath string) error {
		return parquet.WriteFile(tmpPath, Rows(c))
	})
	if err != nil {
		return fmt.Errorf("write parquet report %s: %w", path, err)
	}
	return nil
}

// ReadParquetFile reads report rows back from path.
func ReadParquetFile(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet report %s: %w", path, err)
	}
	return rows, nil
}

// WriteJSON writes the run as indented JSON to w.
func WriteJSON(w io.Writer, c usagestats.Completion) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}
