// Package watcher polls input roots for source changes and triggers a
// reconversion. Polling with mtime+size snapshots keeps the dependency
// surface flat and behaves identically across platforms.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/retroware/basconv/internal/discover"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

type rootState struct {
	snapshot map[string]fileSnapshot
	interval time.Duration
	nextPoll time.Time
}

// ConvertFunc is the callback signature for triggering a reconversion of
// one input root.
type ConvertFunc func(ctx context.Context, root string) error

// Watcher polls input roots for file changes and triggers reconversion.
type Watcher struct {
	roots     []string
	convertFn ConvertFunc
	states    map[string]*rootState
	ctx       context.Context
}

// New creates a Watcher. convertFn is called when file changes are detected.
func New(roots []string, convertFn ConvertFunc) *Watcher {
	return &Watcher{
		roots:     roots,
		convertFn: convertFn,
		states:    make(map[string]*rootState),
	}
}

// Run blocks until ctx is cancelled. Ticks at baseInterval, polling each
// root only when its adaptive interval has elapsed.
func (w *Watcher) Run(ctx context.Context) {
	w.ctx = ctx
	ticker := time.NewTicker(baseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollAll()
		}
	}
}

// pollAll polls each root that is due.
func (w *Watcher) pollAll() {
	now := time.Now()
	for _, root := range w.roots {
		state, exists := w.states[root]
		if !exists {
			state = &rootState{}
			w.states[root] = state
		}
		if exists && now.Before(state.nextPoll) {
			continue // not due yet
		}
		w.pollRoot(root, state)
	}
}

// pollRoot captures a snapshot of the file tree and compares with previous.
// First poll: captures baseline without triggering conversion.
// Subsequent polls: triggers convertFn if any file changed.
func (w *Watcher) pollRoot(root string, state *rootState) {
	if _, err := os.Stat(root); err != nil {
		slog.Warn("watcher.root_gone", "path", root)
		state.nextPoll = time.Now().Add(maxInterval)
		return
	}

	snap, err := captureSnapshot(root)
	if err != nil {
		slog.Warn("watcher.snapshot", "path", root, "err", err)
		state.nextPoll = time.Now().Add(state.interval)
		return
	}

	interval := pollInterval(len(snap))

	if state.snapshot == nil {
		// First poll: capture baseline, no conversion trigger
		slog.Debug("watcher.baseline", "path", root, "files", len(snap))
		state.snapshot = snap
		state.interval = interval
		state.nextPoll = time.Now().Add(interval)
		return
	}

	if snapshotsEqual(state.snapshot, snap) {
		state.interval = interval
		state.nextPoll = time.Now().Add(interval)
		return
	}

	slog.Info("watcher.changed", "path", root, "files", len(snap))
	if err := w.convertFn(w.ctx, root); err != nil {
		slog.Warn("watcher.convert", "path", root, "err", err)
		// Keep old snapshot so we retry next cycle
		state.nextPoll = time.Now().Add(interval)
		return
	}

	// Successful conversion: update snapshot and recalculate interval
	state.snapshot = snap
	state.interval = pollInterval(len(snap))
	state.nextPoll = time.Now().Add(state.interval)
}

// captureSnapshot walks the file tree using discover.Discover and captures
// mtime+size for each source file.
func captureSnapshot(root string) (map[string]fileSnapshot, error) {
	files, err := discover.Discover(context.Background(), root, nil)
	if err != nil {
		return nil, err
	}

	snap := make(map[string]fileSnapshot, len(files))
	for _, f := range files {
		info, statErr := os.Stat(f.Path)
		if statErr != nil {
			continue
		}
		snap[f.RelPath] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
		}
	}
	return snap, nil
}

// snapshotsEqual returns true if two snapshots have identical files with same mtime+size.
func snapshotsEqual(a, b map[string]fileSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for path, aSnap := range a {
		bSnap, ok := b[path]
		if !ok {
			return false
		}
		if !aSnap.modTime.Equal(bSnap.modTime) || aSnap.size != bSnap.size {
			return false
		}
	}
	return true
}

// pollInterval computes the adaptive interval from file count.
// 1s base + 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	ms := 1000 + (fileCount/500)*1000
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}
