package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	r := NewRunner()

	res, err := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo hello; echo oops >&2"},
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if got := res.Output.StdoutContent(); got != "hello" {
		t.Errorf("stdout = %q", got)
	}
	if got := res.Output.StderrContent(); got != "oops" {
		t.Errorf("stderr = %q", got)
	}
	if res.ID == "" {
		t.Error("run has no ID")
	}
	if res.Duration() < 0 {
		t.Error("negative duration")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	r := NewRunner()

	res, err := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "exit 42"},
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 42 {
		t.Errorf("exit code = %d, want 42", res.ExitCode)
	}
}

func TestRunStreamsLines(t *testing.T) {
	r := NewRunner()

	var lines []string
	_, err := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo one; echo two"},
	}, func(l Line) {
		lines = append(lines, l.Content)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("streamed lines = %v", lines)
	}
}

func TestRunCancellation(t *testing.T) {
	r := NewRunner()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := r.Run(ctx, Spec{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
	}, nil)

	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("error = %v, want ErrCanceled", err)
	}
	if !res.Canceled {
		t.Error("result not marked canceled")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, process group not killed", elapsed)
	}
}

func TestRunEnvironment(t *testing.T) {
	r := NewRunner(WithBaseEnv(map[string]string{
		"BASE_VAR": "base",
		"SHARED":   "from-base",
	}))

	res, err := r.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo $BASE_VAR $SHARED $EXTRA_VAR"},
		Env: map[string]string{
			"EXTRA_VAR": "extra",
			"SHARED":    "from-spec",
		},
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := res.Output.StdoutContent(); got != "base from-spec extra" {
		t.Errorf("stdout = %q, want %q", got, "base from-spec extra")
	}
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner()

	res, err := r.Run(context.Background(), Spec{
		Command: "pwd",
		Dir:     dir,
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Output.StdoutContent(); got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := NewRunner()
	if _, err := r.Run(context.Background(), Spec{}, nil); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestRunMissingCommand(t *testing.T) {
	r := NewRunner()
	if _, err := r.Run(context.Background(), Spec{Command: "definitely-not-a-real-binary"}, nil); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestActiveCount(t *testing.T) {
	r := NewRunner()

	if got := r.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), Spec{
			Command: "sh",
			Args:    []string{"-c", "sleep 0.3"},
		}, nil)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.ActiveCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount mid-run = %d, want 1", got)
	}

	<-done
	if got := r.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after run = %d, want 0", got)
	}
}
