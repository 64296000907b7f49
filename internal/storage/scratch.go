package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Scratch owns the temporary files of one job. Every path handed out by Track is
// removed exactly once, either early through Release or at the end through Cleanup.
// Removal failures are logged and never returned.
type Scratch struct {
	dir    string
	jobID  string
	log    *slog.Logger
	remove func(string) error

	mu      sync.Mutex
	tracked []string
}

// NewScratch ensures dir exists and returns an empty registry for jobID.
func NewScratch(dir, jobID string, log *slog.Logger) (*Scratch, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure work dir: %w", err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scratch{
		dir:    dir,
		jobID:  jobID,
		log:    log,
		remove: os.Remove,
	}, nil
}

// Track registers and returns a job-unique path "<stem>-<jobID><ext>" in the work dir.
// The file itself is not created.
func (s *Scratch) Track(stem, ext string) string {
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s%s", stem, s.jobID, ext))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = append(s.tracked, path)
	return path
}

// Release removes path now and stops tracking it. Unknown paths are ignored.
func (s *Scratch) Release(path string) {
	s.mu.Lock()
	idx := -1
	for i, p := range s.tracked {
		if p == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.tracked = append(s.tracked[:idx], s.tracked[idx+1:]...)
	s.mu.Unlock()

	s.removeFile(path)
}

// Cleanup removes every still-tracked path, newest first, then any leftover
// "<stem>-<jobID>.*" file in the work dir that an external tool derived from a
// tracked path (partial downloads, pre-conversion containers).
func (s *Scratch) Cleanup() {
	s.mu.Lock()
	paths := s.tracked
	s.tracked = nil
	s.mu.Unlock()

	for i := len(paths) - 1; i >= 0; i-- {
		s.removeFile(paths[i])
	}
	s.sweep()
}

func (s *Scratch) sweep() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("temp dir scan failed", "job_id", s.jobID, "dir", s.dir, "err", err)
		return
	}
	marker := "-" + s.jobID + "."
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), marker) {
			continue
		}
		s.removeFile(filepath.Join(s.dir, e.Name()))
	}
}

// Pending returns the tracked paths that have not been removed yet.
func (s *Scratch) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tracked...)
}

func (s *Scratch) removeFile(path string) {
	err := s.remove(path)
	switch {
	case err == nil:
		s.log.Debug("temp file removed", "job_id", s.jobID, "path", path)
	case errors.Is(err, fs.ErrNotExist):
		// Never created (e.g. the step producing it failed first).
	default:
		s.log.Warn("temp file cleanup failed", "job_id", s.jobID, "path", path, "err", err)
	}
}
