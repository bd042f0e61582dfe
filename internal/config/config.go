// Package config resolves swiftbridge settings from defaults, an
// optional TOML file, and a small set of environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is the config file looked up in a folder root.
const DefaultFileName = "swiftbridge.toml"

// Settings are the resolved option values the engine consumes.
type Settings struct {
	// SwiftPath is the swift executable.
	SwiftPath string

	// Configuration is the build configuration (debug or release).
	Configuration string

	// SDK is an optional SDK root.
	SDK string

	// ExtraBuildArgs are appended to every toolchain invocation.
	ExtraBuildArgs []string

	// DiagnosticsStyle selects the merge mode by name. Unrecognized
	// values fall back to keepAll at parse time.
	DiagnosticsStyle string

	// BackgroundCompilation enables the autobuild trigger.
	BackgroundCompilation bool

	// DebounceInterval is the autobuild quiet window.
	DebounceInterval time.Duration

	// SourceRoots are the watched subdirectory names.
	SourceRoots []string

	// SourceExtensions are the watched file extensions.
	SourceExtensions []string

	// TasksFile is the per-project tasks file name.
	TasksFile string

	// LogLevel is the minimum log level name.
	LogLevel string
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		SwiftPath:             "swift",
		Configuration:         "debug",
		DiagnosticsStyle:      "keepSourceKit",
		BackgroundCompilation: false,
		DebounceInterval:      100 * time.Millisecond,
		SourceRoots:           []string{"Sources", "Tests", "Plugins"},
		SourceExtensions:      []string{".swift"},
		TasksFile:             "swiftbridge.yaml",
		LogLevel:              "info",
	}
}

// fileConfig is the on-disk TOML structure. Absent keys leave the
// defaults untouched.
type fileConfig struct {
	Toolchain struct {
		Path          string   `toml:"path"`
		Configuration string   `toml:"configuration"`
		SDK           string   `toml:"sdk"`
		ExtraArgs     []string `toml:"extra-args"`
	} `toml:"toolchain"`

	Diagnostics struct {
		Style string `toml:"style"`
	} `toml:"diagnostics"`

	Autobuild struct {
		Enabled    *bool    `toml:"enabled"`
		DebounceMS int      `toml:"debounce-ms"`
		Roots      []string `toml:"roots"`
		Extensions []string `toml:"extensions"`
	} `toml:"autobuild"`

	Tasks struct {
		File string `toml:"file"`
	} `toml:"tasks"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Load reads settings from a TOML file layered over the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(&settings)
			return settings, nil
		}
		return settings, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return settings, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if file.Toolchain.Path != "" {
		settings.SwiftPath = file.Toolchain.Path
	}
	if file.Toolchain.Configuration != "" {
		settings.Configuration = file.Toolchain.Configuration
	}
	if file.Toolchain.SDK != "" {
		settings.SDK = file.Toolchain.SDK
	}
	if file.Toolchain.ExtraArgs != nil {
		settings.ExtraBuildArgs = file.Toolchain.ExtraArgs
	}
	if file.Diagnostics.Style != "" {
		settings.DiagnosticsStyle = file.Diagnostics.Style
	}
	if file.Autobuild.Enabled != nil {
		settings.BackgroundCompilation = *file.Autobuild.Enabled
	}
	if file.Autobuild.DebounceMS > 0 {
		settings.DebounceInterval = time.Duration(file.Autobuild.DebounceMS) * time.Millisecond
	}
	if file.Autobuild.Roots != nil {
		settings.SourceRoots = file.Autobuild.Roots
	}
	if file.Autobuild.Extensions != nil {
		settings.SourceExtensions = file.Autobuild.Extensions
	}
	if file.Tasks.File != "" {
		settings.TasksFile = file.Tasks.File
	}
	if file.Log.Level != "" {
		settings.LogLevel = file.Log.Level
	}

	applyEnv(&settings)
	return settings, nil
}

// applyEnv overlays environment overrides. These win over the file so
// a shell session can redirect the toolchain without editing config.
func applyEnv(settings *Settings) {
	if v := os.Getenv("SWIFTBRIDGE_SWIFT"); v != "" {
		settings.SwiftPath = v
	}
	if v := os.Getenv("SWIFTBRIDGE_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
}
