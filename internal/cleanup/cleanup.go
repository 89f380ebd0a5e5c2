// Package cleanup reclaims temporary files: per job through a Scope that is
// released on every exit path, and globally through a periodic Reaper sweep.
package cleanup

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// Remove deletes each non-empty path that exists. Failures are logged as
// warnings and never stop the remaining paths from being attempted.
// It returns the number of files actually removed.
func Remove(logger *slog.Logger, paths ...string) int {
	removed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if logger != nil {
				logger.Warn("failed to remove temp file", "path", p, "error", err)
			}
			continue
		}
		removed++
	}
	return removed
}

// Scope owns the temporary files of one job. Release deletes them exactly
// once no matter how many exit paths call it.
type Scope struct {
	logger *slog.Logger

	mu    sync.Mutex
	paths []string
	once  sync.Once
}

func NewScope(logger *slog.Logger, paths ...string) *Scope {
	return &Scope{logger: logger, paths: append([]string(nil), paths...)}
}

// Add registers further paths, e.g. the output file once it is allocated.
func (s *Scope) Add(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, paths...)
}

// Paths returns a copy of the tracked paths.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Release removes every tracked path. Subsequent calls are no-ops.
func (s *Scope) Release() {
	s.once.Do(func() {
		Remove(s.logger, s.Paths()...)
	})
}
