package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	s := Default()
	if s.SwiftPath != "swift" {
		t.Errorf("SwiftPath = %q", s.SwiftPath)
	}
	if s.Configuration != "debug" {
		t.Errorf("Configuration = %q", s.Configuration)
	}
	if s.DiagnosticsStyle != "keepSourceKit" {
		t.Errorf("DiagnosticsStyle = %q", s.DiagnosticsStyle)
	}
	if s.BackgroundCompilation {
		t.Error("BackgroundCompilation enabled by default")
	}
	if s.DebounceInterval != 100*time.Millisecond {
		t.Errorf("DebounceInterval = %v", s.DebounceInterval)
	}
	if len(s.SourceExtensions) != 1 || s.SourceExtensions[0] != ".swift" {
		t.Errorf("SourceExtensions = %v", s.SourceExtensions)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("SWIFTBRIDGE_SWIFT", "")
	t.Setenv("SWIFTBRIDGE_LOG_LEVEL", "")

	s, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(s, Default()) {
		t.Errorf("settings = %+v, want defaults", s)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[toolchain]
path = "/opt/swift/bin/swift"
configuration = "release"
sdk = "/sdk/root"
extra-args = ["-Xswiftc", "-warnings-as-errors"]

[diagnostics]
style = "keepSwiftc"

[autobuild]
enabled = true
debounce-ms = 250
roots = ["Src"]
extensions = [".swift", ".swiftinterface"]

[tasks]
file = "mytasks.yaml"

[log]
level = "debug"
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s.SwiftPath != "/opt/swift/bin/swift" {
		t.Errorf("SwiftPath = %q", s.SwiftPath)
	}
	if s.Configuration != "release" || s.SDK != "/sdk/root" {
		t.Errorf("Configuration/SDK = %q/%q", s.Configuration, s.SDK)
	}
	if len(s.ExtraBuildArgs) != 2 {
		t.Errorf("ExtraBuildArgs = %v", s.ExtraBuildArgs)
	}
	if s.DiagnosticsStyle != "keepSwiftc" {
		t.Errorf("DiagnosticsStyle = %q", s.DiagnosticsStyle)
	}
	if !s.BackgroundCompilation {
		t.Error("BackgroundCompilation not enabled")
	}
	if s.DebounceInterval != 250*time.Millisecond {
		t.Errorf("DebounceInterval = %v", s.DebounceInterval)
	}
	if len(s.SourceRoots) != 1 || s.SourceRoots[0] != "Src" {
		t.Errorf("SourceRoots = %v", s.SourceRoots)
	}
	if s.TasksFile != "mytasks.yaml" || s.LogLevel != "debug" {
		t.Errorf("TasksFile/LogLevel = %q/%q", s.TasksFile, s.LogLevel)
	}
}

func TestLoadPartialFileKeepsOtherDefaults(t *testing.T) {
	path := writeConfig(t, `
[toolchain]
configuration = "release"
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Configuration != "release" {
		t.Errorf("Configuration = %q", s.Configuration)
	}
	if s.SwiftPath != "swift" || s.DiagnosticsStyle != "keepSourceKit" {
		t.Errorf("untouched settings changed: %+v", s)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "[toolchain\npath = ")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed TOML")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SWIFTBRIDGE_SWIFT", "/env/swift")
	t.Setenv("SWIFTBRIDGE_LOG_LEVEL", "error")

	path := writeConfig(t, `
[toolchain]
path = "/file/swift"

[log]
level = "debug"
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.SwiftPath != "/env/swift" {
		t.Errorf("SwiftPath = %q, want env override", s.SwiftPath)
	}
	if s.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want env override", s.LogLevel)
	}
}
