package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/sof-events/internal/events"
	"github.com/joseph-ayodele/sof-events/internal/export"
)

// OutputPath names the events file for src: <dir>/<base>.events.<ext>. An
// empty dir puts it next to src.
func OutputPath(src, dir string, format export.Format) string {
	if dir == "" {
		dir = filepath.Dir(src)
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(dir, base+".events."+format.Ext())
}

// WriteOutput renders records next to a temp name and renames it into place,
// so watchers of dir never see a half-written file.
func WriteOutput(src, dir string, format export.Format, records []events.Record) (string, error) {
	dst := OutputPath(src, dir, format)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".sof-*")
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := export.Write(tmp, format, records); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename output: %w", err)
	}
	return dst, nil
}
