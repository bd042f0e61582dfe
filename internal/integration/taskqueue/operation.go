// Package taskqueue serializes toolchain operations per project folder.
//
// Each folder gets at most one running operation at a time; further
// submissions queue FIFO behind it. Submissions whose identity key
// matches a running or pending operation collapse into that operation
// instead of executing twice, so a burst of identical build requests
// costs one build.
package taskqueue

import (
	"context"
	"strings"
)

// Operation is a unit of work submitted to a folder's queue.
type Operation struct {
	// Key identifies the operation for deduplication. Two operations
	// with the same key are considered the same request. See Key.
	Key string

	// Label is the human-readable display label.
	Label string

	// CheckAlreadyRunning enables deduplication against the folder's
	// currently running operation, not just pending ones.
	CheckAlreadyRunning bool

	// ShowStatusItem requests a status indicator while running.
	// The queue records it; rendering is up to listeners.
	ShowStatusItem bool

	// Run executes the operation and returns its exit code. The
	// context is canceled when the submitter's context is canceled.
	Run func(ctx context.Context) (int, error)
}

// Result is the settled outcome of an operation, delivered to every
// submitter that was collapsed into the same execution.
type Result struct {
	// Code is the exit code, -1 when the operation failed to run.
	Code int

	// Err is non-nil when the operation's callback failed or was
	// canceled.
	Err error
}

// keySep separates key components. Unit separator keeps argument
// boundaries unambiguous without escaping.
const keySep = "\x1f"

// Key derives an operation identity key from the invocation's semantic
// content: command, arguments, and working directory.
func Key(command string, args []string, cwd string) string {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, command)
	parts = append(parts, args...)
	parts = append(parts, cwd)
	return strings.Join(parts, keySep)
}
