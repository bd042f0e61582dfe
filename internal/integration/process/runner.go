// Package process runs external toolchain programs with streamed output
// and cooperative cancellation.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrCanceled is returned when a run is terminated by context
// cancellation before the process exits on its own.
var ErrCanceled = errors.New("process canceled")

// Spec describes a program invocation.
type Spec struct {
	// Command is the program to run.
	Command string

	// Args are the program arguments.
	Args []string

	// Dir is the working directory. Empty means the runner default.
	Dir string

	// Env are additional environment variables, layered over the
	// runner's base environment.
	Env map[string]string
}

// Result holds the outcome of a completed run.
type Result struct {
	// ID uniquely identifies this run.
	ID string

	// ExitCode is the process exit code, or -1 if the process was
	// killed or never started.
	ExitCode int

	// Canceled is true when the run ended due to context cancellation.
	Canceled bool

	// StartTime and EndTime bound the run.
	StartTime time.Time
	EndTime   time.Time

	// Output holds the captured output lines.
	Output *OutputProcessor
}

// Duration returns the wall-clock duration of the run.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Runner executes programs with line-streamed output.
//
// Each child is placed in its own process group so cancellation kills
// the whole tree, not just the immediate child. Runner is safe for
// concurrent use.
type Runner struct {
	workingDir string
	baseEnv    map[string]string
	bufferSize int

	mu     sync.Mutex
	active map[string]*osexec.Cmd
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkingDir sets the default working directory.
func WithWorkingDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.workingDir = dir
	}
}

// WithBaseEnv sets environment variables applied to every run.
func WithBaseEnv(env map[string]string) RunnerOption {
	return func(r *Runner) {
		r.baseEnv = env
	}
}

// WithOutputBufferSize sets the scanner buffer size for output lines.
func WithOutputBufferSize(size int) RunnerOption {
	return func(r *Runner) {
		r.bufferSize = size
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		bufferSize: 64 * 1024,
		active:     make(map[string]*osexec.Cmd),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the spec and blocks until the process exits or ctx is
// canceled. The callback, if non-nil, receives each output line as it
// arrives. On cancellation the process group is killed and the result
// carries Canceled=true along with ErrCanceled.
func (r *Runner) Run(ctx context.Context, spec Spec, onLine func(Line)) (*Result, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("empty command")
	}

	id := uuid.NewString()
	res := &Result{
		ID:       id,
		ExitCode: -1,
		Output:   NewOutputProcessor(r.bufferSize),
	}

	cmd := osexec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if cmd.Dir == "" {
		cmd.Dir = r.workingDir
	}
	cmd.Env = r.buildEnvironment(spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	res.StartTime = time.Now()
	if err := cmd.Start(); err != nil {
		res.EndTime = time.Now()
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	r.mu.Lock()
	r.active[id] = cmd
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()
	}()

	// Kill the process group when ctx is canceled. killDone stops the
	// watchdog once Wait returns.
	killDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-killDone:
		}
	}()

	var pumps errgroup.Group
	pumps.Go(func() error {
		return res.Output.Process(stdout, StreamStdout, onLine)
	})
	pumps.Go(func() error {
		return res.Output.Process(stderr, StreamStderr, onLine)
	})

	// Scanner errors are not fatal; the output is already partially
	// captured and the exit code is what callers act on.
	_ = pumps.Wait()

	waitErr := cmd.Wait()
	close(killDone)
	res.EndTime = time.Now()

	if ctx.Err() != nil {
		res.Canceled = true
		return res, ErrCanceled
	}

	if waitErr != nil {
		var exitErr *osexec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("wait %s: %w", spec.Command, waitErr)
	}

	res.ExitCode = 0
	return res, nil
}

// ActiveCount returns the number of runs currently in flight.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// buildEnvironment layers spec env over base env over os.Environ.
func (r *Runner) buildEnvironment(extra map[string]string) []string {
	envMap := make(map[string]string)

	for _, kv := range os.Environ() {
		if idx := strings.Index(kv, "="); idx > 0 {
			envMap[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range r.baseEnv {
		envMap[k] = v
	}
	for k, v := range extra {
		envMap[k] = v
	}

	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(envMap))
	for _, k := range keys {
		env = append(env, k+"="+envMap[k])
	}
	return env
}
