// Package main implements the entry point for the demo-05 engine core: it
// loads configuration, assembles the runtime, kicks off the initial asset
// load and drives playback until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"

	"github.com/hadronized/demo-05/config"
	"github.com/hadronized/demo-05/runtime"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "demo-05"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := goruntime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("demo failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	slog.Info("starting demo core",
		"version", Version,
		"build_time", BuildTime,
		"assets", cfg.AssetsDir,
		"bpm", cfg.Timeline.BPM,
		"length", cfg.Timeline.Length)

	r, err := runtime.New(logger, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	if err := r.Initialize(); err != nil {
		return fmt.Errorf("init phase: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := r.LoadAssets(); err != nil {
		slog.Warn("initial asset load incomplete", "error", err)
	}
	if err := r.Synchronizer().Play(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}

	waitForShutdown(ctx)
	slog.Info("shutting down", "timeout", cliCfg.ShutdownTimeout)
	return r.Stop(cliCfg.ShutdownTimeout)
}

func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	if cliCfg.ConfigPath != "" {
		loaded, err := config.LoadFromFile(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// CLI overrides the file.
	if cliCfg.AssetsDir != "" {
		cfg.AssetsDir = cliCfg.AssetsDir
	}
	cfg.Logging.Level = cliCfg.LogLevel
	cfg.Logging.Format = cliCfg.LogFormat

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func waitForShutdown(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("signal received", "signal", sig.String())
	case <-ctx.Done():
	}
}
