package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

// RetryInterval is how long a supervised watcher waits before trying to
// re-establish a watch that failed to start.
const RetryInterval = 30 * time.Second

// Supervise runs DirWatchers built by build until ctx ends. A watch that
// cannot be established, typically because the configured share is not
// mounted, is recorded against name in the registry and retried after the
// given interval instead of propagating; the rest of the daemon keeps
// running.
func Supervise(ctx context.Context, reg *Registry, name string, retry time.Duration, build func() *DirWatcher) error {
	for {
		dw := build()
		reg.Ready(name)
		err := dw.Run(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		reg.Error(name, err, nil)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

// DirWatcher delivers debounced file events for a directory tree up to a
// fixed depth. Subdirectories created after startup are added to the watch
// within the depth bound, and files already present when the watcher starts
// are delivered once so drops that happened while the daemon was down are
// not lost.
type DirWatcher struct {
	root   string
	depth  int
	deb    *Debouncer
	filter func(path string) bool
	log    *logger.Logger
}

// NewDirWatcher watches root down to depth levels of subdirectories
// (depth 1 means root only). filter may be nil to accept every file.
func NewDirWatcher(root string, depth int, delay time.Duration, filter func(path string) bool, handle func(path string), baseLog *logger.Logger) *DirWatcher {
	if depth < 1 {
		depth = 1
	}
	return &DirWatcher{
		root:   filepath.Clean(root),
		depth:  depth,
		deb:    NewDebouncer(delay, handle),
		filter: filter,
		log:    baseLog.With("component", "DirWatcher", "root", root),
	}
}

// Run blocks until ctx is cancelled. It returns an error only when the
// watch cannot be established at all; runtime errors are logged and the
// loop keeps going.
func (w *DirWatcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch root %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	defer w.deb.Stop()

	if err := w.addTree(fsw); err != nil {
		return err
	}
	w.deliverExisting()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.onEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *DirWatcher) onEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 && w.depthOf(ev.Name) < w.depth {
			if err := fsw.Add(ev.Name); err != nil {
				w.log.Warn("watch new directory", "dir", ev.Name, "error", err)
			}
		}
		return
	}
	if w.accepts(ev.Name) {
		w.deb.Hit(ev.Name)
	}
}

func (w *DirWatcher) accepts(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".tmp-") {
		return false
	}
	return w.filter == nil || w.filter(path)
}

// depthOf counts directory levels below the root: the root itself is 0.
func (w *DirWatcher) depthOf(path string) int {
	rel, err := filepath.Rel(w.root, filepath.Clean(path))
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

func (w *DirWatcher) addTree(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("walk watch tree", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.depthOf(path) >= w.depth {
			return fs.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *DirWatcher) deliverExisting() {
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if w.depthOf(path) > w.depth {
				return fs.SkipDir
			}
			return nil
		}
		if w.accepts(path) {
			w.deb.Hit(path)
		}
		return nil
	})
}
