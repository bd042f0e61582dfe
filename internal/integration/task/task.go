// Package task defines the units of work submitted to the toolchain:
// build, test, run, and user-defined tasks, plus the composition of
// final argument vectors from base build flags.
package task

import "strings"

// Kind classifies a task.
type Kind string

const (
	// KindBuild compiles the package.
	KindBuild Kind = "build"
	// KindTest runs the test suite.
	KindTest Kind = "test"
	// KindRun builds and runs an executable product.
	KindRun Kind = "run"
	// KindCustom is a user-defined task from the tasks file.
	KindCustom Kind = "custom"
)

// Task describes a toolchain invocation before flag composition.
type Task struct {
	// Name is a short identifier, unique within a tasks file.
	Name string

	// Label is the human-readable display label.
	Label string

	// Kind selects the toolchain subcommand.
	Kind Kind

	// Args are extra arguments appended after composed flags.
	Args []string

	// Cwd is the working directory, relative to the folder root when
	// not absolute. Empty means the folder root.
	Cwd string

	// Env are additional environment variables.
	Env map[string]string
}

// DisplayLabel returns the label, falling back to the name.
func (t Task) DisplayLabel() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Name
}

// BuildFlags are the resolved base flags shared by all toolchain
// invocations in a folder.
type BuildFlags struct {
	// Configuration is the build configuration (debug or release).
	Configuration string

	// SDK is an optional SDK root passed as --sdk.
	SDK string

	// Sanitizer is an optional sanitizer name passed as --sanitize.
	Sanitizer string

	// ExtraArgs are additional flags appended verbatim.
	ExtraArgs []string
}

// ComposeArgs yields the final argument vector for a task: the
// toolchain subcommand, the composed base flags, then the task's own
// arguments. It is a pure function of its inputs.
func ComposeArgs(flags BuildFlags, t Task) []string {
	args := make([]string, 0, 8+len(flags.ExtraArgs)+len(t.Args))

	switch t.Kind {
	case KindBuild:
		args = append(args, "build")
	case KindTest:
		args = append(args, "test")
	case KindRun:
		args = append(args, "run")
	case KindCustom:
		// Custom tasks carry their own subcommand in Args.
	}

	if flags.Configuration != "" && t.Kind != KindCustom {
		args = append(args, "-c", flags.Configuration)
	}
	if flags.SDK != "" {
		args = append(args, "--sdk", flags.SDK)
	}
	if flags.Sanitizer != "" {
		args = append(args, "--sanitize", strings.ToLower(flags.Sanitizer))
	}
	args = append(args, flags.ExtraArgs...)
	args = append(args, t.Args...)

	return args
}

// BuildAll returns the canonical whole-package build task.
func BuildAll() Task {
	return Task{
		Name:  "build-all",
		Label: "Build All",
		Kind:  KindBuild,
		Args:  []string{"--build-tests"},
	}
}

// TestAll returns the canonical whole-package test task.
func TestAll() Task {
	return Task{
		Name:  "test-all",
		Label: "Test All",
		Kind:  KindTest,
	}
}
