package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher implements Watcher using fsnotify.
//
// fsnotify does not watch recursively, so FSWatcher registers every
// subdirectory beneath a root and picks up newly created directories
// from create events. Hidden directories and build output directories
// are skipped.
type FSWatcher struct {
	mu sync.Mutex

	inner  *fsnotify.Watcher
	config Config

	// roots are the directories registered via Add.
	roots map[string]bool

	events chan Event
	errors chan error

	closed  bool
	closeCh chan struct{}
	loopWg  sync.WaitGroup
}

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	".build": true,
	".git":   true,
}

// NewFSWatcher creates a new fsnotify-based watcher.
func NewFSWatcher(opts ...Option) (*FSWatcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = 128
	}

	w := &FSWatcher{
		inner:   inner,
		config:  config,
		roots:   make(map[string]bool),
		events:  make(chan Event, bufSize),
		errors:  make(chan error, bufSize),
		closeCh: make(chan struct{}),
	}

	w.loopWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Add starts watching a directory tree.
func (w *FSWatcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return ErrPathNotExist
	}

	if w.roots[abs] {
		return ErrAlreadyWatching
	}

	if err := w.addTree(abs); err != nil {
		return err
	}

	w.roots[abs] = true
	return nil
}

// addTree registers a directory and every subdirectory with fsnotify.
func (w *FSWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directory vanished mid-walk; not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return w.inner.Add(path)
	})
}

// Events returns the event channel.
func (w *FSWatcher) Events() <-chan Event {
	return w.events
}

// Errors returns the error channel.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// Paths returns the registered root paths.
func (w *FSWatcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.roots))
	for p := range w.roots {
		paths = append(paths, p)
	}
	return paths
}

// Close stops the watcher.
func (w *FSWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.inner.Close()
	w.loopWg.Wait()

	close(w.events)
	close(w.errors)
	return err
}

// processLoop translates fsnotify events into watcher events.
func (w *FSWatcher) processLoop() {
	defer w.loopWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.inner.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)

		case err, ok := <-w.inner.Errors:
			if !ok {
				return
			}
			w.forwardError(err)
		}
	}
}

// handleRaw filters and forwards a single fsnotify event.
func (w *FSWatcher) handleRaw(ev fsnotify.Event) {
	op := translateOp(ev.Op)
	if op == 0 {
		return
	}

	// Watch newly created subdirectories so nested saves keep arriving.
	if op.Has(OpCreate) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			name := filepath.Base(ev.Name)
			if !skipDirs[name] && !strings.HasPrefix(name, ".") {
				_ = w.inner.Add(ev.Name)
			}
			return
		}
	}

	if !w.matchesExtension(ev.Name) {
		return
	}

	event := Event{
		Path:      ev.Name,
		Op:        op,
		Timestamp: time.Now(),
	}

	select {
	case w.events <- event:
	case <-w.closeCh:
	default:
		// Channel full, drop event.
	}
}

// matchesExtension reports whether the path passes the extension filter.
func (w *FSWatcher) matchesExtension(path string) bool {
	if len(w.config.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range w.config.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// forwardError forwards an fsnotify error.
func (w *FSWatcher) forwardError(err error) {
	select {
	case w.errors <- err:
	case <-w.closeCh:
	default:
	}
}

// translateOp maps fsnotify operations to watcher operations.
func translateOp(op fsnotify.Op) Op {
	var out Op
	if op.Has(fsnotify.Create) {
		out |= OpCreate
	}
	if op.Has(fsnotify.Write) {
		out |= OpWrite
	}
	if op.Has(fsnotify.Remove) {
		out |= OpRemove
	}
	if op.Has(fsnotify.Rename) {
		out |= OpRename
	}
	return out
}

// Ensure FSWatcher implements Watcher.
var _ Watcher = (*FSWatcher)(nil)
