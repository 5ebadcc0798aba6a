// Package watcher marks a project dirty when its working tree changes, so
// the next search's catch-up rescans even inside the fresh window. It never
// indexes by itself; indexing stays on the search path.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches event bursts (editor saves, git checkouts) into
// one dirty mark.
const DefaultDebounce = 500 * time.Millisecond

// skipDirs mirrors the scanner's hard excludes; events under these are noise.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, ".venv": {}, "__pycache__": {},
	"dist": {}, "build": {}, "target": {}, ".idea": {}, ".vscode": {},
}

// Watcher watches one project root recursively.
type Watcher struct {
	root     string
	debounce time.Duration
	onDirty  func()
	fsw      *fsnotify.Watcher
}

// New starts watching root. onDirty fires at most once per debounce window.
func New(root string, debounce time.Duration, onDirty func()) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		onDirty:  onDirty,
		fsw:      fsw,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled. Call in a goroutine.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			// New directories join the watch so nested changes keep arriving.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.onDirty()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if _, skip := skipDirs[part]; skip {
			return true
		}
	}
	return false
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := skipDirs[d.Name()]; skip && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Debug("watch_add_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})
}
