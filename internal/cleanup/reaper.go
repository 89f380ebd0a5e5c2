package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/VGachet/tapedit-server/internal/metrics"

	"github.com/shirou/gopsutil/v4/disk"
)

// Reaper periodically removes files in the temp directory that are older
// than MaxAge, whether or not a job still refers to them. It is the backstop
// for files orphaned by crashes.
type Reaper struct {
	logger   *slog.Logger
	dir      string
	interval time.Duration
	maxAge   time.Duration
}

func NewReaper(logger *slog.Logger, dir string, interval, maxAge time.Duration) *Reaper {
	return &Reaper{
		logger:   logger,
		dir:      dir,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	if r.interval <= 0 || r.maxAge <= 0 {
		r.logger.Warn("temp reaper disabled", "interval", r.interval, "max_age", r.maxAge)
		return
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.Sweep(now)
			}
		}
	}()
}

// Sweep deletes regular files whose modification time is before now-MaxAge.
// Per-file errors are logged and skipped.
func (r *Reaper) Sweep(now time.Time) int {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read temp dir", "dir", r.dir, "error", err)
		}
		return 0
	}

	cutoff := now.Add(-r.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn("failed to stat temp file", "path", path, "error", err)
				metrics.ReaperErrorsTotal.Inc()
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn("failed to remove stale temp file", "path", path, "error", err)
				metrics.ReaperErrorsTotal.Inc()
			}
			continue
		}
		removed++
	}

	metrics.ReaperFilesRemovedTotal.Add(float64(removed))
	if removed > 0 {
		r.logger.Info("cleanup completed", "removed_files", removed, "dir", r.dir)
	}
	if free, err := DiskFree(r.dir); err == nil {
		metrics.TempDiskFreeBytes.Set(float64(free))
	} else {
		r.logger.Debug("failed to read temp disk usage", "dir", r.dir, "error", err)
	}
	return removed
}

// DiskFree returns the bytes available on the filesystem holding dir.
func DiskFree(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
