package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/swiftbridge/internal/config"
	"github.com/dshills/swiftbridge/internal/diagnostics"
	"github.com/dshills/swiftbridge/internal/integration/taskqueue"
)

// stubToolchain writes a shell script standing in for the swift binary.
// The script reports an error diagnostic for main.swift whenever a
// "fail" marker file exists in the folder, and exits clean otherwise.
func stubToolchain(t *testing.T, dir string) string {
	t.Helper()

	script := filepath.Join(dir, "fake-swift")
	content := `#!/bin/sh
if [ -f "$PWD/fail" ]; then
  echo "Sources/App/main.swift:2:5: error: cannot find 'foo' in scope"
  exit 1
fi
echo "Build complete!"
exit 0
`
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

// publishRecorder captures publish callbacks keyed by URI.
type publishRecorder struct {
	mu      sync.Mutex
	batches map[diagnostics.DocumentURI][][]diagnostics.Diagnostic
}

func newPublishRecorder() *publishRecorder {
	return &publishRecorder{batches: make(map[diagnostics.DocumentURI][][]diagnostics.Diagnostic)}
}

func (p *publishRecorder) handle(uri diagnostics.DocumentURI, entries []diagnostics.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches[uri] = append(p.batches[uri], entries)
}

func (p *publishRecorder) last(uri diagnostics.DocumentURI) ([]diagnostics.Diagnostic, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.batches[uri]
	if len(b) == 0 {
		return nil, false
	}
	return b[len(b)-1], true
}

func newTestService(t *testing.T, dir string, rec *publishRecorder) *Service {
	t.Helper()

	settings := config.Default()
	settings.SwiftPath = stubToolchain(t, dir)

	opts := []ServiceOption{WithLogger(NopLogger())}
	if rec != nil {
		opts = append(opts, WithPublishHandler(rec.handle))
	}
	s := NewService(settings, opts...)
	t.Cleanup(s.Shutdown)
	return s
}

func mustResult(t *testing.T, ch <-chan taskqueue.Result) taskqueue.Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for build result")
		return taskqueue.Result{}
	}
}

func TestBuildPublishesCompilerDiagnostics(t *testing.T) {
	dir := t.TempDir()
	rec := newPublishRecorder()
	s := newTestService(t, dir, rec)

	if _, err := s.AddFolder("proj", dir); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "fail"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ch, err := s.Build(context.Background(), "proj")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res := mustResult(t, ch)
	if res.Err != nil {
		t.Fatalf("build error: %v", res.Err)
	}
	if res.Code != 1 {
		t.Errorf("exit code = %d, want 1", res.Code)
	}

	uri := diagnostics.FilePathToURI(filepath.Join(dir, "Sources/App/main.swift"))
	entries := s.Diagnostics().Diagnostics(uri)
	if len(entries) != 1 {
		t.Fatalf("diagnostics = %d, want 1", len(entries))
	}
	d := entries[0]
	if d.Severity != diagnostics.SeverityError || d.Origin != diagnostics.OriginSwiftc {
		t.Errorf("diagnostic = %+v", d)
	}
	if d.Range.Start.Line != 1 || d.Range.Start.Character != 4 {
		t.Errorf("position = %+v, want zero-based 1:4", d.Range.Start)
	}

	if last, ok := rec.last(uri); !ok || len(last) != 1 {
		t.Errorf("published batch = %v", last)
	}

	if len(s.BuildOutput()) == 0 {
		t.Error("no toolchain output retained")
	}
}

func TestCleanBuildClearsPreviousDiagnostics(t *testing.T) {
	dir := t.TempDir()
	rec := newPublishRecorder()
	s := newTestService(t, dir, rec)

	if _, err := s.AddFolder("proj", dir); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}

	marker := filepath.Join(dir, "fail")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	buildAndWait(t, s, "proj")

	// Fix the build and run again: the stale error must be pruned.
	if err := os.Remove(marker); err != nil {
		t.Fatal(err)
	}
	res := buildAndWait(t, s, "proj")
	if res.Code != 0 {
		t.Fatalf("clean build exit code = %d", res.Code)
	}

	uri := diagnostics.FilePathToURI(filepath.Join(dir, "Sources/App/main.swift"))
	if entries := s.Diagnostics().Diagnostics(uri); len(entries) != 0 {
		t.Errorf("diagnostics after clean build = %v, want none", entries)
	}
	if last, ok := rec.last(uri); !ok || len(last) != 0 {
		t.Errorf("final publish = %v, want empty batch", last)
	}
}

func buildAndWait(t *testing.T, s *Service, folder string) taskqueue.Result {
	t.Helper()
	ch, err := s.Build(context.Background(), folder)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return mustResult(t, ch)
}

func TestAddFolderDuplicate(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)

	if _, err := s.AddFolder("proj", dir); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	if _, err := s.AddFolder("proj", dir); err == nil {
		t.Error("expected error for duplicate folder name")
	}
}

func TestBuildUnknownFolder(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil)
	if _, err := s.Build(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown folder")
	}
}

func TestRunTaskFromDefinitions(t *testing.T) {
	dir := t.TempDir()

	tasksFile := `
tasks:
  hello:
    label: Say Hello
    kind: custom
    args: [-c, "echo hi"]
`
	if err := os.WriteFile(filepath.Join(dir, "swiftbridge.yaml"), []byte(tasksFile), 0o644); err != nil {
		t.Fatal(err)
	}

	settings := config.Default()
	settings.SwiftPath = "sh"
	s := NewService(settings, WithLogger(NopLogger()))
	t.Cleanup(s.Shutdown)

	f, err := s.AddFolder("proj", dir)
	if err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	if len(f.Tasks) != 1 {
		t.Fatalf("loaded tasks = %d, want 1", len(f.Tasks))
	}

	ch, err := s.RunTask(context.Background(), "proj", "hello")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	res := mustResult(t, ch)
	if res.Err != nil || res.Code != 0 {
		t.Errorf("result = {%d %v}", res.Code, res.Err)
	}

	if _, err := s.RunTask(context.Background(), "proj", "nope"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestRemoveFolderClearsCompilerDiagnostics(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)

	if _, err := s.AddFolder("proj", dir); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fail"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	buildAndWait(t, s, "proj")

	uri := diagnostics.FilePathToURI(filepath.Join(dir, "Sources/App/main.swift"))
	if entries := s.Diagnostics().Diagnostics(uri); len(entries) == 0 {
		t.Fatal("no diagnostics before RemoveFolder")
	}

	s.RemoveFolder("proj")
	if entries := s.Diagnostics().Diagnostics(uri); len(entries) != 0 {
		t.Errorf("diagnostics after RemoveFolder = %v, want none", entries)
	}
}

func TestHandleLSPDiagnostics(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir, nil)

	params := []byte(`{
		"uri": "file:///proj/a.swift",
		"diagnostics": [
			{"range": {"start": {"line": 3, "character": 0}}, "severity": 2, "message": "unused variable"}
		]
	}`)
	if err := s.HandleLSPDiagnostics(params); err != nil {
		t.Fatalf("HandleLSPDiagnostics: %v", err)
	}

	entries := s.Diagnostics().Diagnostics("file:///proj/a.swift")
	if len(entries) != 1 || entries[0].Origin != diagnostics.OriginSourceKit {
		t.Errorf("entries = %+v", entries)
	}

	if err := s.HandleLSPDiagnostics([]byte(`{"diagnostics": []}`)); err == nil {
		t.Error("expected error for payload without uri")
	}
}

func TestIsBuilding(t *testing.T) {
	dir := t.TempDir()

	settings := config.Default()
	settings.SwiftPath = "sh"
	s := NewService(settings, WithLogger(NopLogger()))
	t.Cleanup(s.Shutdown)

	tasksFile := `
tasks:
  slow:
    kind: custom
    args: [-c, "sleep 0.3"]
`
	if err := os.WriteFile(filepath.Join(dir, "swiftbridge.yaml"), []byte(tasksFile), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddFolder("proj", dir); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}

	if s.IsBuilding("proj") {
		t.Error("IsBuilding true before any submission")
	}

	ch, err := s.RunTask(context.Background(), "proj", "slow")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !s.IsBuilding("proj") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !s.IsBuilding("proj") {
		t.Error("IsBuilding never became true")
	}

	mustResult(t, ch)
	if s.IsBuilding("proj") {
		t.Error("IsBuilding true after completion")
	}
}
