// Package retention removes detection snapshots older than the retention window.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/ayusman/doorcam/internal/snapfile"
)

// Result summarizes one sweep.
type Result struct {
	Deleted int
	Kept    int
	Bytes   int64
}

// Sweep deletes snapshot files in dir whose modification time is before
// now minus days. Other files are never touched. A missing dir is not an error.
func Sweep(dir string, days int, now time.Time) (Result, error) {
	var res Result
	if days < 1 {
		return res, fmt.Errorf("retention days must be at least 1, got %d", days)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("read detections dir: %w", err)
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	var errs error
	for _, e := range entries {
		if e.IsDir() || !snapfile.Match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			res.Kept++
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		res.Deleted++
		res.Bytes += info.Size()
	}
	return res, errs
}
