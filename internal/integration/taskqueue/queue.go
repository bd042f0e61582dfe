package taskqueue

import (
	"context"
	"errors"
	"sync"
)

// ErrNoCallback is returned when an operation is submitted without a
// Run callback.
var ErrNoCallback = errors.New("operation has no run callback")

// Listener receives operation lifecycle events.
type Listener interface {
	// OnOperationStarted is called when an operation begins executing.
	OnOperationStarted(folder, label string)

	// OnOperationFinished is called when an operation settles, with
	// the result every collapsed submitter observed.
	OnOperationFinished(folder, label string, result Result)
}

// execution is one scheduled run of an operation together with every
// submitter waiting on it.
type execution struct {
	op      Operation
	ctx     context.Context
	waiters []chan Result
}

// folderState tracks one folder's queue.
//
// Invariant: at most one running execution per folder; pending
// preserves submission order.
type folderState struct {
	running *execution
	pending []*execution
}

// Queue serializes operations per folder. Operations submitted to
// different folders execute independently. Queue is safe for
// concurrent use.
type Queue struct {
	mu      sync.Mutex
	folders map[string]*folderState

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		folders: make(map[string]*folderState),
	}
}

// AddListener registers a lifecycle listener.
func (q *Queue) AddListener(l Listener) {
	q.listenersMu.Lock()
	defer q.listenersMu.Unlock()
	q.listeners = append(q.listeners, l)
}

// RemoveListener unregisters a lifecycle listener.
func (q *Queue) RemoveListener(l Listener) {
	q.listenersMu.Lock()
	defer q.listenersMu.Unlock()
	for i, existing := range q.listeners {
		if existing == l {
			q.listeners = append(q.listeners[:i], q.listeners[i+1:]...)
			return
		}
	}
}

// Submit schedules an operation on a folder's queue and returns a
// channel that receives exactly one Result when the operation settles.
//
// Deduplication: when op.CheckAlreadyRunning is set and the folder's
// running operation has the same key, the caller attaches to that run.
// When a pending operation has the same key, the caller attaches to the
// earliest such pending instance. Otherwise the operation is appended
// and, if the folder is idle, started immediately.
//
// The context applies to the execution this submission starts; waiters
// attached to someone else's execution observe that execution's
// outcome, including cancellation.
func (q *Queue) Submit(ctx context.Context, folder string, op Operation) <-chan Result {
	ch := make(chan Result, 1)

	if op.Run == nil {
		ch <- Result{Code: -1, Err: ErrNoCallback}
		return ch
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	st := q.folders[folder]
	if st == nil {
		st = &folderState{}
		q.folders[folder] = st
	}

	// Collapse into the in-flight execution.
	if op.CheckAlreadyRunning && st.running != nil && st.running.op.Key == op.Key {
		st.running.waiters = append(st.running.waiters, ch)
		q.mu.Unlock()
		return ch
	}

	// Collapse into the earliest pending execution with this key.
	for _, p := range st.pending {
		if p.op.Key == op.Key {
			p.waiters = append(p.waiters, ch)
			q.mu.Unlock()
			return ch
		}
	}

	ex := &execution{op: op, ctx: ctx, waiters: []chan Result{ch}}
	if st.running == nil {
		st.running = ex
		go q.runFolder(folder)
	} else {
		st.pending = append(st.pending, ex)
	}
	q.mu.Unlock()

	return ch
}

// IsRunning reports whether the folder has an operation mid-execution.
func (q *Queue) IsRunning(folder string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.folders[folder]
	return st != nil && st.running != nil
}

// RunningLabel returns the label of the folder's running operation.
func (q *Queue) RunningLabel(folder string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.folders[folder]
	if st == nil || st.running == nil {
		return "", false
	}
	return st.running.op.Label, true
}

// PendingCount returns the number of queued, not yet running,
// operations for a folder.
func (q *Queue) PendingCount(folder string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.folders[folder]
	if st == nil {
		return 0
	}
	return len(st.pending)
}

// runFolder is the worker loop for one folder. It owns st.running:
// only this goroutine executes and advances it, and it exits the
// moment it relinquishes ownership under the lock, so a concurrent
// Submit starting a new loop can never double-run.
func (q *Queue) runFolder(folder string) {
	for {
		q.mu.Lock()
		ex := q.folders[folder].running
		q.mu.Unlock()

		q.notifyStarted(folder, ex.op.Label)

		code, err := ex.op.Run(ex.ctx)
		res := Result{Code: code, Err: err}

		q.mu.Lock()
		for _, w := range ex.waiters {
			w <- res
		}
		st := q.folders[folder]
		more := len(st.pending) > 0
		if more {
			st.running = st.pending[0]
			st.pending = st.pending[1:]
		} else {
			st.running = nil
		}
		q.mu.Unlock()

		q.notifyFinished(folder, ex.op.Label, res)

		if !more {
			return
		}
	}
}

func (q *Queue) notifyStarted(folder, label string) {
	q.listenersMu.RLock()
	listeners := make([]Listener, len(q.listeners))
	copy(listeners, q.listeners)
	q.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnOperationStarted(folder, label)
	}
}

func (q *Queue) notifyFinished(folder, label string, res Result) {
	q.listenersMu.RLock()
	listeners := make([]Listener, len(q.listeners))
	copy(listeners, q.listeners)
	q.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnOperationFinished(folder, label, res)
	}
}
