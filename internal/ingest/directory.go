package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/sof-events/constants"
)

type FileResult struct {
	Path string
	Err  string
}

type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// FileFunc handles one discovered document.
type FileFunc func(ctx context.Context, path string) error

// Directory walks root, skips hidden entries if requested, and calls fn for
// every .pdf and .docx file. A failing file is recorded and the walk goes on;
// only a cancelled ctx or an unreadable root stops it.
func Directory(ctx context.Context, root string, skipHidden bool, fn FileFunc) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if path != root && skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !constants.AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		if err := fn(ctx, path); err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, FileResult{Path: path})
		stats.Succeeded++
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// IsHidden reports whether the base name starts with '.'.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
