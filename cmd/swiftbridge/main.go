// Package main is the entry point for the swiftbridge engine.
//
// Run it against a Swift package folder to build once, run the tests,
// or stay resident watching sources and rebuilding in the background.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dshills/swiftbridge/internal/app"
	"github.com/dshills/swiftbridge/internal/config"
	"github.com/dshills/swiftbridge/internal/diagnostics"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		folderPath  = flag.String("folder", ".", "project folder to operate on")
		configPath  = flag.String("config", "", "config file (default <folder>/swiftbridge.toml)")
		watch       = flag.Bool("watch", false, "stay resident and rebuild on source changes")
		runTests    = flag.Bool("test", false, "run the test suite instead of building")
		logLevel    = flag.String("log-level", "", "override log level (debug|info|warn|error)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("swiftbridge %s (%s)\n", version, commit)
		return 0
	}

	abs, err := filepath.Abs(*folderPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = filepath.Join(abs, config.DefaultFileName)
	}
	settings, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}
	if *watch {
		settings.BackgroundCompilation = true
	}

	logger := app.NewLogger(app.ParseLogLevel(settings.LogLevel), os.Stderr)
	service := app.NewService(settings,
		app.WithLogger(logger),
		app.WithPublishHandler(printDiagnostics),
	)
	defer service.Shutdown()

	name := filepath.Base(abs)
	if _, err := service.AddFolder(name, abs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	if *watch {
		logger.Infof("watching %s for changes", abs)
		<-ctx.Done()
		return 0
	}

	submit := service.Build
	if *runTests {
		submit = service.Test
	}
	ch, err := submit(ctx, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	res := <-ch
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", res.Err)
		return 1
	}
	return res.Code
}

// printDiagnostics renders each document's merged diagnostics to
// stdout as they change.
func printDiagnostics(uri diagnostics.DocumentURI, entries []diagnostics.Diagnostic) {
	path := diagnostics.URIToFilePath(uri)
	for _, d := range entries {
		fmt.Printf("%s:%d:%d: %s: %s\n",
			path,
			d.Range.Start.Line+1,
			d.Range.Start.Character+1,
			d.Severity,
			d.Message,
		)
	}
}
