// Package app wires the swiftbridge engine together: configuration,
// the per-folder task queue, the process runner, background
// compilation, and the diagnostics merge pipeline.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dshills/swiftbridge/internal/config"
	"github.com/dshills/swiftbridge/internal/diagnostics"
	"github.com/dshills/swiftbridge/internal/integration/autobuild"
	"github.com/dshills/swiftbridge/internal/integration/process"
	"github.com/dshills/swiftbridge/internal/integration/task"
	"github.com/dshills/swiftbridge/internal/integration/taskqueue"
)

// Folder is a registered project folder.
type Folder struct {
	// Name identifies the folder in the queue and in events.
	Name string

	// Path is the absolute folder root.
	Path string

	// Tasks are the custom tasks loaded from the folder's tasks file.
	Tasks []task.Task

	// swiftcURIs tracks which documents the last compiler run
	// reported diagnostics for, so a clean re-run clears them.
	swiftcURIs map[diagnostics.DocumentURI]bool
}

// Service is the engine facade consumed by the editor layer.
type Service struct {
	settings config.Settings
	log      *Logger

	queue    *taskqueue.Queue
	runner   *process.Runner
	diag     *diagnostics.Manager
	trigger  *autobuild.Trigger
	buildLog *process.RollingLog

	mu      sync.Mutex
	folders map[string]*Folder
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger  *Logger
	publish func(uri diagnostics.DocumentURI, entries []diagnostics.Diagnostic)
	factory autobuild.WatcherFactory
}

// WithLogger sets the service logger.
func WithLogger(l *Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = l
	}
}

// WithPublishHandler sets the callback receiving each document's
// merged diagnostics after every change.
func WithPublishHandler(fn func(uri diagnostics.DocumentURI, entries []diagnostics.Diagnostic)) ServiceOption {
	return func(o *serviceOptions) {
		o.publish = fn
	}
}

// WithWatcherFactory overrides autobuild's watcher creation.
func WithWatcherFactory(factory autobuild.WatcherFactory) ServiceOption {
	return func(o *serviceOptions) {
		o.factory = factory
	}
}

// NewService creates the engine from resolved settings.
func NewService(settings config.Settings, opts ...ServiceOption) *Service {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NewLogger(ParseLogLevel(settings.LogLevel), nil)
	}

	s := &Service{
		settings: settings,
		log:      o.logger,
		queue:    taskqueue.New(),
		runner:   process.NewRunner(),
		buildLog: process.NewRollingLog(2000),
		folders:  make(map[string]*Folder),
	}

	managerOpts := []diagnostics.ManagerOption{
		diagnostics.WithMergeMode(diagnostics.ParseMergeMode(settings.DiagnosticsStyle)),
	}
	if o.publish != nil {
		managerOpts = append(managerOpts, diagnostics.WithPublishHandler(o.publish))
	}
	s.diag = diagnostics.NewManager(managerOpts...)

	triggerOpts := []autobuild.Option{
		autobuild.WithInterval(settings.DebounceInterval),
		autobuild.WithRoots(settings.SourceRoots),
		autobuild.WithExtensions(settings.SourceExtensions),
	}
	if o.factory != nil {
		triggerOpts = append(triggerOpts, autobuild.WithWatcherFactory(o.factory))
	}
	s.trigger = autobuild.New(s.backgroundBuild, triggerOpts...)

	s.queue.AddListener(&queueLogger{log: s.log})

	return s
}

// Diagnostics exposes the diagnostics manager for the language-server
// feed and for queries.
func (s *Service) Diagnostics() *diagnostics.Manager {
	return s.diag
}

// Queue exposes the task queue for status queries.
func (s *Service) Queue() *taskqueue.Queue {
	return s.queue
}

// BuildOutput returns the retained toolchain output, oldest first. The
// log rolls across runs; old lines age out as new output arrives.
func (s *Service) BuildOutput() []string {
	return s.buildLog.Lines()
}

// AddFolder registers a project folder. Custom tasks are loaded from
// the folder's tasks file when present, and background compilation is
// attached when enabled.
func (s *Service) AddFolder(name, path string) (*Folder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	tasks, err := task.LoadDefinitions(filepath.Join(abs, s.settings.TasksFile))
	if err != nil {
		return nil, err
	}

	f := &Folder{
		Name:       name,
		Path:       abs,
		Tasks:      tasks,
		swiftcURIs: make(map[diagnostics.DocumentURI]bool),
	}

	s.mu.Lock()
	if _, exists := s.folders[name]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("folder already registered: %s", name)
	}
	s.folders[name] = f
	s.mu.Unlock()

	if s.settings.BackgroundCompilation {
		if err := s.trigger.Enable(name, abs); err != nil {
			s.log.Warnf("background compilation unavailable for %s: %v", name, err)
		}
	}

	s.log.Infof("folder registered: %s (%d custom tasks)", name, len(tasks))
	return f, nil
}

// RemoveFolder unregisters a folder and detaches its watchers.
func (s *Service) RemoveFolder(name string) {
	s.trigger.Disable(name)

	s.mu.Lock()
	f, ok := s.folders[name]
	delete(s.folders, name)
	s.mu.Unlock()
	if !ok {
		return
	}

	// Clear this folder's compiler diagnostics from the collection.
	for uri := range f.swiftcURIs {
		s.diag.HandleDiagnostics(uri, diagnostics.OriginSwiftc, nil)
	}
}

// SetBackgroundCompilation toggles the autobuild feature for all
// registered folders. Both directions are idempotent.
func (s *Service) SetBackgroundCompilation(enabled bool) {
	s.mu.Lock()
	s.settings.BackgroundCompilation = enabled
	folders := make([]*Folder, 0, len(s.folders))
	for _, f := range s.folders {
		folders = append(folders, f)
	}
	s.mu.Unlock()

	for _, f := range folders {
		if enabled {
			if err := s.trigger.Enable(f.Name, f.Path); err != nil {
				s.log.Warnf("background compilation unavailable for %s: %v", f.Name, err)
			}
		} else {
			s.trigger.Disable(f.Name)
		}
	}
}

// Build submits a whole-package build for the folder.
func (s *Service) Build(ctx context.Context, folder string) (<-chan taskqueue.Result, error) {
	return s.submit(ctx, folder, task.BuildAll(), false)
}

// Test submits the folder's test suite.
func (s *Service) Test(ctx context.Context, folder string) (<-chan taskqueue.Result, error) {
	return s.submit(ctx, folder, task.TestAll(), false)
}

// RunTask submits a named custom task from the folder's tasks file.
func (s *Service) RunTask(ctx context.Context, folder, taskName string) (<-chan taskqueue.Result, error) {
	s.mu.Lock()
	f, ok := s.folders[folder]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown folder: %s", folder)
	}

	for _, t := range f.Tasks {
		if t.Name == taskName {
			return s.submit(ctx, folder, t, false)
		}
	}
	return nil, fmt.Errorf("unknown task %q in folder %s", taskName, folder)
}

// IsBuilding reports whether the folder has an operation in flight.
func (s *Service) IsBuilding(folder string) bool {
	return s.queue.IsRunning(folder)
}

// HandleLSPDiagnostics feeds a textDocument/publishDiagnostics payload
// from the language-server client into the merge engine.
func (s *Service) HandleLSPDiagnostics(params []byte) error {
	uri, entries, err := diagnostics.DecodePublish(params)
	if err != nil {
		return err
	}
	s.diag.HandleDiagnostics(uri, diagnostics.OriginSourceKit, entries)
	return nil
}

// Shutdown detaches all watchers. Queued operations run to
// completion; callers cancel their own contexts to stop them.
func (s *Service) Shutdown() {
	s.trigger.Close()
}

// submit composes the toolchain invocation for a task and queues it.
func (s *Service) submit(ctx context.Context, folder string, t task.Task, background bool) (<-chan taskqueue.Result, error) {
	s.mu.Lock()
	f, ok := s.folders[folder]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown folder: %s", folder)
	}

	args := task.ComposeArgs(s.buildFlags(), t)
	cwd := f.Path
	if t.Cwd != "" {
		if filepath.IsAbs(t.Cwd) {
			cwd = t.Cwd
		} else {
			cwd = filepath.Join(f.Path, t.Cwd)
		}
	}

	op := taskqueue.Operation{
		Key:                 taskqueue.Key(s.settings.SwiftPath, args, cwd),
		Label:               t.DisplayLabel(),
		CheckAlreadyRunning: background,
		ShowStatusItem:      !background,
		Run: func(ctx context.Context) (int, error) {
			return s.runToolchain(ctx, f, t, args, cwd)
		},
	}
	return s.queue.Submit(ctx, folder, op), nil
}

// runToolchain executes one toolchain invocation and feeds its parsed
// diagnostics into the merge engine.
func (s *Service) runToolchain(ctx context.Context, f *Folder, t task.Task, args []string, cwd string) (int, error) {
	parser := diagnostics.NewParser(cwd)

	res, err := s.runner.Run(ctx, process.Spec{
		Command: s.settings.SwiftPath,
		Args:    args,
		Dir:     cwd,
		Env:     t.Env,
	}, func(line process.Line) {
		s.buildLog.Append(line.Content)
		parser.ParseLine(line.Content)
	})

	// A canceled or failed spawn produced no trustworthy snapshot;
	// leave the previous diagnostics in place.
	if err != nil {
		return -1, err
	}

	s.publishCompilerDiagnostics(f, parser.ByPath())
	return res.ExitCode, nil
}

// publishCompilerDiagnostics replaces the folder's compiler-origin
// diagnostics with this run's snapshot. Documents reported last run
// but clean now receive an empty snapshot so their entries are pruned.
func (s *Service) publishCompilerDiagnostics(f *Folder, byPath map[string][]diagnostics.Diagnostic) {
	current := make(map[diagnostics.DocumentURI]bool, len(byPath))
	for path, entries := range byPath {
		uri := diagnostics.FilePathToURI(path)
		current[uri] = true
		s.diag.HandleDiagnostics(uri, diagnostics.OriginSwiftc, entries)
	}

	s.mu.Lock()
	previous := f.swiftcURIs
	f.swiftcURIs = current
	s.mu.Unlock()

	for uri := range previous {
		if !current[uri] {
			s.diag.HandleDiagnostics(uri, diagnostics.OriginSwiftc, nil)
		}
	}
}

// backgroundBuild is the autobuild trigger's submit hook. Failures
// are swallowed here; the build's diagnostics are the source of truth.
func (s *Service) backgroundBuild(folder string) {
	ch, err := s.submitBackground(folder)
	if err != nil {
		s.log.Debugf("background build skipped for %s: %v", folder, err)
		return
	}
	go func() {
		res := <-ch
		if res.Err != nil {
			s.log.Debugf("background build for %s: %v", folder, res.Err)
		} else if res.Code != 0 {
			s.log.Debugf("background build for %s exited %d", folder, res.Code)
		}
	}()
}

func (s *Service) submitBackground(folder string) (<-chan taskqueue.Result, error) {
	return s.submit(context.Background(), folder, task.BuildAll(), true)
}

// buildFlags resolves the base flags shared by all invocations.
func (s *Service) buildFlags() task.BuildFlags {
	return task.BuildFlags{
		Configuration: s.settings.Configuration,
		SDK:           s.settings.SDK,
		ExtraArgs:     s.settings.ExtraBuildArgs,
	}
}

// queueLogger logs operation lifecycle events.
type queueLogger struct {
	log *Logger
}

func (q *queueLogger) OnOperationStarted(folder, label string) {
	q.log.Infof("operation started: %s (%s)", label, folder)
}

func (q *queueLogger) OnOperationFinished(folder, label string, res taskqueue.Result) {
	if res.Err != nil {
		q.log.Warnf("operation failed: %s (%s): %v", label, folder, res.Err)
		return
	}
	q.log.Infof("operation finished: %s (%s) exit=%d", label, folder, res.Code)
}
