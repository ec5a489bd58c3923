// Package fileutil provides tmp+mv file writes so readers never see a
// partially written report.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// TmpSuffix marks in-progress files.
const TmpSuffix = ".tmp"

// WriteAtomic writes outPath through a temporary file in the same directory.
// writeFunc receives the temporary path and should write the complete file.
// On success the file is fsynced and renamed over outPath; on failure the
// temporary file is removed and outPath is left untouched.
func WriteAtomic(outPath string, writeFunc func(tmpPath string) error) error {
	outDir := filepath.Dir(outPath)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + TmpSuffix
	if err := writeFunc(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := syncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

// syncFile opens, syncs, and closes a file.
func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	err = f.Sync()
	f.Close()
	return err
}
