package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const workspacePrefix = "codetutor-"

// Workspace hands out per-task scratch directories under one root.
type Workspace struct {
	root string
	now  func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

// NewWorkspace creates a Workspace rooted at root, creating it if needed.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Workspace{root: root, now: time.Now, active: make(map[string]struct{})}, nil
}

// Root returns the directory all task workspaces live in.
func (w *Workspace) Root() string { return w.root }

// Acquire creates a fresh directory for one task. The returned release
// function removes it and everything inside; it is safe to call more than
// once.
func (w *Workspace) Acquire(taskID string) (dir string, release func(), err error) {
	dir, err = os.MkdirTemp(w.root, workspacePrefix+taskID+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create workspace: %w", err)
	}
	w.mu.Lock()
	w.active[filepath.Base(dir)] = struct{}{}
	w.mu.Unlock()

	release = func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove workspace", "dir", dir, "error", err)
		}
		w.mu.Lock()
		delete(w.active, filepath.Base(dir))
		w.mu.Unlock()
	}
	return dir, release, nil
}

// SweepStale removes workspace directories last modified more than olderThan
// ago. These are left behind only when the process dies mid-task; workspaces
// still held by a running task are never removed.
func (w *Workspace) SweepStale(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, fmt.Errorf("read work dir: %w", err)
	}
	cutoff := w.now().Add(-olderThan)

	var errs []error
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) || w.held(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (w *Workspace) held(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[name]
	return ok
}

// JanitorStats reports one sweep.
type JanitorStats struct {
	TasksEvicted      int `json:"tasks_evicted"`
	WorkspacesRemoved int `json:"workspaces_removed"`
}

// Janitor periodically evicts expired tasks and deletes orphaned workspaces.
type Janitor struct {
	store    *TaskStore
	ws       *Workspace
	staleAge time.Duration
}

// NewJanitor creates a Janitor.
func NewJanitor(store *TaskStore, ws *Workspace, staleAge time.Duration) *Janitor {
	return &Janitor{store: store, ws: ws, staleAge: staleAge}
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep() JanitorStats {
	stats := JanitorStats{TasksEvicted: j.store.Evict()}
	if j.ws != nil && j.staleAge > 0 {
		n, err := j.ws.SweepStale(j.staleAge)
		if err != nil {
			slog.Warn("workspace sweep incomplete", "error", err)
		}
		stats.WorkspacesRemoved = n
	}
	return stats
}

// Start runs Sweep every interval until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s := j.Sweep(); s.TasksEvicted > 0 || s.WorkspacesRemoved > 0 {
					slog.Info("janitor sweep",
						"tasks_evicted", s.TasksEvicted, "workspaces_removed", s.WorkspacesRemoved)
				}
			}
		}
	}()
}
