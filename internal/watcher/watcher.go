// Package watcher provides file system watching for source directories.
//
// The watcher detects changes (create, modify, delete, rename) beneath
// registered roots and delivers them on a channel, filtered down to the
// file extensions the caller cares about. It is the event source for
// background compilation.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch {
	case op.Has(OpCreate):
		return "CREATE"
	case op.Has(OpWrite):
		return "WRITE"
	case op.Has(OpRemove):
		return "REMOVE"
	case op.Has(OpRename):
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o != 0
}

// Event represents a file system change event.
type Event struct {
	// Path is the absolute path of the affected file.
	Path string

	// Op is the operation that occurred.
	Op Op

	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Watcher monitors file system changes beneath registered roots.
type Watcher interface {
	// Add starts watching a directory and all of its subdirectories.
	// Returns ErrPathNotExist if the path does not exist and
	// ErrAlreadyWatching if it is already registered.
	Add(path string) error

	// Events returns the channel of file change events.
	// The channel is closed when the watcher is closed.
	Events() <-chan Event

	// Errors returns the channel of watcher errors.
	// The channel is closed when the watcher is closed.
	Errors() <-chan error

	// Paths returns the registered root paths.
	Paths() []string

	// Close stops the watcher and releases resources.
	Close() error
}

// Config holds watcher configuration options.
type Config struct {
	// Extensions limits file events to paths with one of these
	// extensions (including the dot, e.g. ".swift"). Empty means all.
	Extensions []string

	// BufferSize is the size of the event and error channels.
	// Default: 128.
	BufferSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 128,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithExtensions limits file events to the given extensions.
func WithExtensions(exts []string) Option {
	return func(c *Config) {
		c.Extensions = exts
	}
}

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}
