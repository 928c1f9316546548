package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// workDirPrefix namespaces per-job scratch directories so orphan sweeps
// never touch unrelated files in the temp root.
const workDirPrefix = "clipforge-job-"

// Workspace manages per-job scratch directories under a single temp root.
type Workspace struct {
	root string
	log  *slog.Logger
}

// NewWorkspace creates a workspace rooted at dir, creating it if needed.
// An empty dir falls back to the system temp directory.
func NewWorkspace(dir string, log *slog.Logger) (*Workspace, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving temp root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating temp root: %w", err)
	}
	return &Workspace{root: abs, log: log}, nil
}

// Root returns the absolute temp root.
func (w *Workspace) Root() string {
	return w.root
}

// JobDir creates and returns the scratch directory for a job. The job ID is
// sanitized into a single path element so a hostile ID cannot climb out of
// the root.
func (w *Workspace) JobDir(jobID string) (string, error) {
	name := workDirPrefix + sanitizeID(jobID)
	dir := filepath.Join(w.root, name)
	if !strings.HasPrefix(dir, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("job directory escapes temp root: %s", jobID)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating job directory: %w", err)
	}
	return dir, nil
}

// Remove deletes a job's scratch directory and everything under it.
func (w *Workspace) Remove(jobID string) {
	dir := filepath.Join(w.root, workDirPrefix+sanitizeID(jobID))
	if err := os.RemoveAll(dir); err != nil {
		w.log.Warn("removing job directory", slog.String("dir", dir), slog.String("error", err.Error()))
	}
}

// SweepOrphans removes job directories older than maxAge. These are left
// behind when a worker dies mid-render.
func (w *Workspace) SweepOrphans(maxAge time.Duration) int {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.log.Warn("sweeping temp root", slog.String("error", err.Error()))
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(w.root, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			w.log.Warn("removing orphan directory", slog.String("dir", dir), slog.String("error", err.Error()))
			continue
		}
		removed++
		w.log.Info("removed orphan job directory", slog.String("dir", dir))
	}
	return removed
}

// sanitizeID keeps only characters safe in a single path element.
func sanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
