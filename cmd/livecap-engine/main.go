// SPDX-License-Identifier: MIT

// Package main implements livecap-engine, the long-running daemon that
// watches configured Twitch and YouTube channels and automatically captures
// their live broadcasts.
//
// Usage:
//
//	livecap-engine [options]
//
// Options:
//
//	--config=PATH    Path to config file (default: /etc/livecap/config.yaml)
//	--presets=PATH   Path to the preset store (default: alongside the config file)
//	--log-level=LEVEL Log level: debug, info, warn, error (default: info)
//	--help           Show this help message
//
// Example:
//
//	# Run with default config
//	livecap-engine
//
//	# Run with a custom config
//	livecap-engine --config=/path/to/config.yaml
//
// The daemon automatically:
//   - Subscribes to Twitch PubSub stream-up/stream-down events
//   - Polls YouTube channel RSS feeds for new live broadcasts
//   - Admits matching presets into the capture queue, respecting cooldowns,
//     disk space, and the global pause flag
//   - Restarts failed services with suture's supervision
//   - Handles SIGINT/SIGTERM/SIGHUP for graceful shutdown
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/corvidwatch/livecap/internal/config"
	"github.com/corvidwatch/livecap/internal/engine"
	"github.com/corvidwatch/livecap/internal/health"
	"github.com/corvidwatch/livecap/internal/presets"
	"github.com/corvidwatch/livecap/internal/util"
)

// Build information (set by ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Command line flags.
var (
	configPath  = flag.String("config", config.ConfigFilePath, "Path to configuration file")
	presetsPath = flag.String("presets", "", "Path to the preset store (default: alongside the config file)")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	showHelp    = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := newLogger(*logLevel)
	logger.Info("starting livecap-engine", "version", Version, "commit", Commit, "built", BuildTime)

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded configuration", "path", *configPath)

	resolvedPresetsPath := *presetsPath
	if resolvedPresetsPath == "" {
		resolvedPresetsPath = presets.DefaultPath(cfg, filepath.Dir(*configPath))
	}

	eng, err := engine.New(cfg, resolvedPresetsPath, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	logger.Info("opened preset store", "path", resolvedPresetsPath, "presets", len(eng.Store().All()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if cfg.Monitor.Enabled {
		util.SafeGo("health-endpoint", nil, func() {
			handler := health.NewHandler(eng)
			logger.Info("starting health endpoint", "addr", cfg.Monitor.HealthAddr)
			if err := health.ListenAndServe(ctx, cfg.Monitor.HealthAddr, handler); err != nil {
				logger.Error("health endpoint stopped", "error", err)
			}
		}, func(r interface{}, stack []byte) {
			logger.Error("panic in health endpoint goroutine", "recover", r, "stack", string(stack))
		})
	}

	logger.Info("running")
	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("engine stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// loadConfiguration loads the config file, returning the built-in defaults
// (without writing a file) if it doesn't exist.
func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printUsage() {
	fmt.Println("livecap-engine - live-stream capture scheduler daemon")
	fmt.Printf("Version: %s (%s)\n\n", Version, Commit)
	fmt.Println("Usage: livecap-engine [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("The daemon watches configured Twitch and YouTube channels and")
	fmt.Println("automatically captures their live broadcasts with yt-dlp.")
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown")
	fmt.Println("  SIGHUP           Graceful shutdown")
}
