// Package autobuild keeps a folder's build artifacts fresh by
// triggering a background build when source files change.
//
// Change events are debounced: a burst of saves within the quiet
// window produces a single trigger, and the submitted build operation
// is deduplicated against any identical build already running or
// queued, so at most one background build is ever outstanding per
// folder.
package autobuild

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/swiftbridge/internal/watcher"
)

// DefaultInterval is the debounce quiet window.
const DefaultInterval = 100 * time.Millisecond

// BuildFunc submits a build-all operation for a folder. The trigger
// ignores the build's outcome: build failures are reported through the
// build's own diagnostics, never surfaced by this layer.
type BuildFunc func(folder string)

// WatcherFactory creates the watcher used for one folder.
type WatcherFactory func() (watcher.Watcher, error)

// Config holds trigger configuration.
type Config struct {
	// Interval is the debounce quiet window. Default: DefaultInterval.
	Interval time.Duration

	// Roots are source-bearing subdirectory names watched beneath a
	// folder (e.g. "Sources", "Tests"). Empty watches the folder root.
	Roots []string

	// Extensions limit events to source files (e.g. ".swift").
	Extensions []string
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithInterval sets the debounce quiet window.
func WithInterval(d time.Duration) Option {
	return func(t *Trigger) {
		if d > 0 {
			t.config.Interval = d
		}
	}
}

// WithRoots sets the watched subdirectory names.
func WithRoots(roots []string) Option {
	return func(t *Trigger) {
		t.config.Roots = roots
	}
}

// WithExtensions sets the source file extensions.
func WithExtensions(exts []string) Option {
	return func(t *Trigger) {
		t.config.Extensions = exts
	}
}

// WithWatcherFactory overrides how folder watchers are created.
// Tests inject synthetic watchers through this.
func WithWatcherFactory(factory WatcherFactory) Option {
	return func(t *Trigger) {
		t.factory = factory
	}
}

// folderWatch is the per-folder watch state.
type folderWatch struct {
	w       watcher.Watcher
	timer   *time.Timer
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Trigger watches enabled folders and schedules debounced builds.
// Trigger is safe for concurrent use.
type Trigger struct {
	mu      sync.Mutex
	config  Config
	build   BuildFunc
	factory WatcherFactory
	folders map[string]*folderWatch
}

// New creates a trigger that calls build when a folder's sources
// settle after a change burst.
func New(build BuildFunc, opts ...Option) *Trigger {
	t := &Trigger{
		config:  Config{Interval: DefaultInterval},
		build:   build,
		folders: make(map[string]*folderWatch),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.factory == nil {
		t.factory = func() (watcher.Watcher, error) {
			return watcher.NewFSWatcher(watcher.WithExtensions(t.config.Extensions))
		}
	}
	return t
}

// Enable starts watching a folder rooted at path. Enabling an already
// enabled folder is a no-op, so toggling the feature on never double
// subscribes.
func (t *Trigger) Enable(folder, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.folders[folder]; ok {
		return nil
	}

	w, err := t.factory()
	if err != nil {
		return err
	}

	if err := t.addRoots(w, path); err != nil {
		_ = w.Close()
		return err
	}

	fw := &folderWatch{
		w:       w,
		closeCh: make(chan struct{}),
	}
	t.folders[folder] = fw

	fw.wg.Add(1)
	go t.watchLoop(folder, fw)

	return nil
}

// addRoots registers the configured source roots that exist.
func (t *Trigger) addRoots(w watcher.Watcher, path string) error {
	if len(t.config.Roots) == 0 {
		return w.Add(path)
	}

	added := 0
	for _, root := range t.config.Roots {
		dir := filepath.Join(path, root)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := w.Add(dir); err != nil {
			return err
		}
		added++
	}
	if added == 0 {
		// No source roots yet; watch the folder itself so builds
		// start once sources appear.
		return w.Add(path)
	}
	return nil
}

// Disable stops watching a folder and disposes its watcher. Disabling
// an already disabled folder is a no-op.
func (t *Trigger) Disable(folder string) {
	t.mu.Lock()
	fw, ok := t.folders[folder]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.folders, folder)
	if fw.timer != nil {
		fw.timer.Stop()
		fw.timer = nil
	}
	close(fw.closeCh)
	t.mu.Unlock()

	_ = fw.w.Close()
	fw.wg.Wait()
}

// Enabled reports whether the folder is being watched.
func (t *Trigger) Enabled(folder string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.folders[folder]
	return ok
}

// Close disables all folders.
func (t *Trigger) Close() {
	t.mu.Lock()
	folders := make([]string, 0, len(t.folders))
	for folder := range t.folders {
		folders = append(folders, folder)
	}
	t.mu.Unlock()

	for _, folder := range folders {
		t.Disable(folder)
	}
}

// watchLoop consumes events for one folder until its watcher closes.
func (t *Trigger) watchLoop(folder string, fw *folderWatch) {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.closeCh:
			return

		case _, ok := <-fw.w.Events():
			if !ok {
				return
			}
			t.bump(folder)

		case _, ok := <-fw.w.Errors():
			if !ok {
				return
			}
			// Watch errors are not actionable here; the next event
			// or the user's explicit build recovers.
		}
	}
}

// bump resets the folder's debounce timer, keeping only the trailing
// event of a burst.
func (t *Trigger) bump(folder string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fw, ok := t.folders[folder]
	if !ok {
		return
	}

	if fw.timer != nil {
		fw.timer.Reset(t.config.Interval)
		return
	}
	fw.timer = time.AfterFunc(t.config.Interval, func() {
		t.fire(folder)
	})
}

// fire runs the debounced build if the folder is still enabled.
func (t *Trigger) fire(folder string) {
	t.mu.Lock()
	fw, ok := t.folders[folder]
	if !ok {
		t.mu.Unlock()
		return
	}
	fw.timer = nil
	build := t.build
	t.mu.Unlock()

	if build != nil {
		build(folder)
	}
}
