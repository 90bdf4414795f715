// SPDX-License-Identifier: MIT

// Package main implements livecap-admin, the command-line companion to
// livecap-engine: it manages the preset store, validates configuration,
// reports engine status, runs diagnostics, and checks for updates.
//
// Usage:
//
//	livecap-admin COMMAND [OPTIONS]
//
// Commands:
//
//	help       Show this help message
//	version    Show version information
//	presets    List, add, remove, enable, or disable presets
//	validate   Validate the configuration file
//	status     Show engine and preset status
//	diagnose   Run system diagnostics
//	update     Check for and install updates
//	menu       Launch the interactive terminal menu
//	config     Back up, restore, or edit the configuration file
//	migrate    Import presets from a legacy key=value preset file
//	download   Run a one-off, non-live download of a single video URL
//
// Examples:
//
//	livecap-admin presets list
//	livecap-admin presets add
//	livecap-admin validate --config=/etc/livecap/config.yaml
//	livecap-admin status --json
//	livecap-admin diagnose --mode=quick
//	livecap-admin menu
//	livecap-admin config backup
//	livecap-admin config set-notification-level both
//	livecap-admin migrate /etc/lyrebird/channels.env
//	livecap-admin download --preset=alpha https://www.youtube.com/watch?v=xyz --start=00:30 --end=05:00
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvidwatch/livecap/internal/config"
	"github.com/corvidwatch/livecap/internal/diagnostics"
	"github.com/corvidwatch/livecap/internal/health"
	"github.com/corvidwatch/livecap/internal/menu"
	"github.com/corvidwatch/livecap/internal/model"
	"github.com/corvidwatch/livecap/internal/presets"
	"github.com/corvidwatch/livecap/internal/recorder"
	"github.com/corvidwatch/livecap/internal/updater"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

const (
	exitSuccess = 0
	exitError   = 1
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}

// run is the main entry point, extracted for testability.
func run(args []string) error {
	if len(args) == 0 {
		return runHelp()
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "presets":
		return runPresets(commandArgs)
	case "validate":
		return runValidate(commandArgs)
	case "status":
		return runStatus(commandArgs)
	case "diagnose":
		return runDiagnose(commandArgs)
	case "update":
		return runUpdate(commandArgs)
	case "menu":
		return runMenu()
	case "config":
		return runConfig(commandArgs)
	case "migrate":
		return runMigrate(commandArgs)
	case "download":
		return runDownload(commandArgs)
	default:
		return fmt.Errorf("unknown command: %s (run 'livecap-admin help' for usage)", command)
	}
}

// runHelp displays usage information.
func runHelp() error {
	fmt.Printf(`LiveCap Admin v%s

USAGE:
    livecap-admin COMMAND [OPTIONS]

COMMANDS:
    help       Show this help message
    version    Show version information
    presets    List, add, remove, enable, or disable presets
    validate   Validate the configuration file
    status     Show engine and preset status
    diagnose   Run system diagnostics
    update     Check for and install updates
    menu       Launch the interactive terminal menu
    config     Back up, restore, or edit the configuration file
    migrate    Import presets from a legacy key=value preset file
    download   Run a one-off, non-live download of a single video URL

OPTIONS:
    --config=PATH    Path to configuration file (default: %s)

EXAMPLES:
    livecap-admin presets list
    livecap-admin presets add
    livecap-admin presets enable <preset-id>
    livecap-admin validate --config=/etc/livecap/config.yaml
    livecap-admin status --json
    livecap-admin diagnose --mode=quick
    livecap-admin update --check
    livecap-admin menu
    livecap-admin config backup
    livecap-admin config restore /etc/livecap/backups/config.yaml.2026-01-01T00-00-00.bak
    livecap-admin config set-notification-level both
    livecap-admin migrate /etc/lyrebird/channels.env
    livecap-admin download --preset=alpha https://www.youtube.com/watch?v=xyz --start=00:30 --end=05:00
`, Version, config.ConfigFilePath)
	return nil
}

// runMenu launches the interactive terminal menu.
func runMenu() error {
	return menu.CreateMainMenu().Display()
}

// runConfig dispatches to the configuration backup/restore/edit subcommands.
func runConfig(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: livecap-admin config <backup|restore|list-backups|set-notification-level> [options]")
	}

	configPath, rest := extractConfigFlag(args[1:])
	backupDir := config.GetBackupDir(configPath)

	switch args[0] {
	case "backup":
		return runConfigBackup(configPath, backupDir)
	case "restore":
		return runConfigRestore(configPath, backupDir, rest)
	case "list-backups":
		return runConfigListBackups(configPath, backupDir)
	case "set-notification-level":
		return runConfigSetNotificationLevel(configPath, backupDir, rest)
	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func runConfigBackup(configPath, backupDir string) error {
	backupPath, err := config.BackupConfig(configPath, backupDir)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	fmt.Printf("Backed up %s to %s\n", configPath, backupPath)

	if deleted, err := config.CleanOldBackups(backupDir, filepath.Base(configPath), config.DefaultKeepBackups); err == nil && deleted > 0 {
		fmt.Printf("Pruned %d old backup(s), keeping the most recent %d\n", deleted, config.DefaultKeepBackups)
	}
	return nil
}

func runConfigRestore(configPath, backupDir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: livecap-admin config restore <backup-file>")
	}
	previous, err := config.RestoreBackup(args[0], configPath, backupDir)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	fmt.Printf("Restored %s from %s\n", configPath, args[0])
	if previous != "" {
		fmt.Printf("Previous config backed up to %s\n", previous)
	}
	return nil
}

func runConfigListBackups(configPath, backupDir string) error {
	backups, err := config.ListBackups(backupDir, filepath.Base(configPath))
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		fmt.Println("No backups found")
		return nil
	}
	for _, b := range backups {
		fmt.Printf("  %s  (%s, %d bytes)\n", b.Path, b.Timestamp.Format(time.RFC3339), b.Size)
	}
	return nil
}

// runConfigSetNotificationLevel edits and saves the notification_level
// setting, demonstrating the config-edit path: BackupBeforeSave takes a
// backup of the prior file before the mutated config is written.
func runConfigSetNotificationLevel(configPath, backupDir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: livecap-admin config set-notification-level <os|toast|both|none>")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.NotificationLevel = args[0]
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid notification_level: %w", err)
	}

	backupPath, err := config.BackupBeforeSave(cfg, configPath, backupDir)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Set notification_level=%s\n", args[0])
	if backupPath != "" {
		fmt.Printf("Previous config backed up to %s\n", backupPath)
	}
	return nil
}

// runMigrate imports presets from a legacy key=value preset file into the
// current JSON preset store.
func runMigrate(args []string) error {
	configPath, rest := extractConfigFlag(args)
	if len(rest) == 0 {
		return fmt.Errorf("usage: livecap-admin migrate <legacy-preset-file> [--config=PATH]")
	}
	legacyPath := rest[0]

	migrated, err := config.MigrateLegacyPresets(legacyPath)
	if err != nil {
		return fmt.Errorf("failed to parse legacy preset file: %w", err)
	}
	if len(migrated) == 0 {
		fmt.Println("No presets found in legacy file")
		return nil
	}

	store, err := openPresetStore(configPath)
	if err != nil {
		return err
	}

	added := 0
	for _, p := range migrated {
		if _, err := store.Add(p); err != nil {
			fmt.Printf("  skip %s: %v\n", p.ChannelName, err)
			continue
		}
		added++
	}
	fmt.Printf("Migrated %d/%d preset(s)\n", added, len(migrated))
	return nil
}

// downloadSink is a recorder.TaskSink that waits for exactly one task's
// terminal transition, used by runDownload to block the foreground CLI
// invocation until the ad-hoc capture finishes.
type downloadSink struct {
	taskID   string
	status   model.TaskStatus
	filePath string
	fileSize int64
	errMsg   string
	done     chan struct{}
}

func (s *downloadSink) MarkTerminal(ctx context.Context, id string, status model.TaskStatus, filePath string, fileSize int64, errMsg string) {
	if id != s.taskID {
		return
	}
	s.status = status
	s.filePath = filePath
	s.fileSize = fileSize
	s.errMsg = errMsg
	close(s.done)
}

// runDownload performs a one-off, non-live capture of a single video URL
// using a named preset's output settings, optionally bounded to a time
// range. Unlike livecap-engine's watched channels, this runs in the
// foreground and blocks until the capture finishes or fails.
func runDownload(args []string) error {
	configPath, rest := extractConfigFlag(args)

	var presetID, startSpec, endSpec string
	var positional []string
	for _, a := range rest {
		switch {
		case strings.HasPrefix(a, "--preset="):
			presetID = strings.TrimPrefix(a, "--preset=")
		case strings.HasPrefix(a, "--start="):
			startSpec = strings.TrimPrefix(a, "--start=")
		case strings.HasPrefix(a, "--end="):
			endSpec = strings.TrimPrefix(a, "--end=")
		default:
			positional = append(positional, a)
		}
	}
	if presetID == "" || len(positional) == 0 {
		return fmt.Errorf("usage: livecap-admin download --preset=ID <url> [--start=TIME --end=TIME]")
	}
	videoURL := positional[0]

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := openPresetStore(configPath)
	if err != nil {
		return err
	}
	if _, ok := store.Preset(presetID); !ok {
		return fmt.Errorf("unknown preset %q", presetID)
	}

	start, end, err := recorder.ParseRange(startSpec, endSpec)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sink := &downloadSink{taskID: uuid.NewString(), done: make(chan struct{})}
	sup := recorder.NewSupervisor(recorder.Config{
		Presets:     store,
		Sink:        sink,
		Binary:      cfg.Recorder.BinaryPath,
		CookieFile:  cfg.Recorder.CookieFile,
		LogDir:      cfg.Recorder.LogDir,
		StopTimeout: cfg.Recorder.StopTimeout,
	})

	duration, _ := sup.ProbeDuration(ctx, videoURL)
	if err := recorder.ValidateRange(start, end, duration); err != nil {
		return fmt.Errorf("range rejected: %w", err)
	}

	task := model.ScheduledTask{
		ID:          sink.taskID,
		PresetID:    presetID,
		StreamURL:   videoURL,
		TriggeredAt: time.Now(),
		AdHoc:       true,
		RangeStart:  start,
		RangeEnd:    end,
	}

	fmt.Printf("Starting ad-hoc download of %s\n", videoURL)
	if err := sup.Start(ctx, task); err != nil {
		return fmt.Errorf("failed to start download: %w", err)
	}

	<-sink.done
	if sink.status != model.TaskCompleted {
		return fmt.Errorf("download ended in status %s: %s", sink.status, sink.errMsg)
	}
	fmt.Printf("Completed: %s (%d bytes)\n", sink.filePath, sink.fileSize)
	return nil
}

// runVersion prints build information.
func runVersion() error {
	fmt.Printf("LiveCap Admin\n")
	fmt.Printf("  Version:    %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built:      %s\n", BuildDate)
	return nil
}

// runPresets dispatches to the preset store subcommands: list, add,
// remove, enable, disable.
func runPresets(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: livecap-admin presets <list|add|remove|enable|disable> [options]")
	}

	configPath, rest := extractConfigFlag(args[1:])
	store, err := openPresetStore(configPath)
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		return runPresetsList(store)
	case "add":
		return runPresetsAdd(store)
	case "remove":
		return runPresetsRemove(store, rest)
	case "enable":
		return runPresetsSetEnabled(store, rest, true)
	case "disable":
		return runPresetsSetEnabled(store, rest, false)
	default:
		return fmt.Errorf("unknown presets subcommand: %s", args[0])
	}
}

func runPresetsList(store *presets.Store) error {
	all := store.All()
	if len(all) == 0 {
		fmt.Println("No presets configured")
		return nil
	}

	fmt.Printf("%d preset(s):\n\n", len(all))
	for _, p := range all {
		status := "disabled"
		if p.Enabled {
			status = "enabled"
		}
		fmt.Printf("  %s  [%s] %s/%s (%s)\n", p.ID, status, p.Platform, p.ChannelName, p.Quality)
		fmt.Printf("      output: %s, triggers: %d\n", p.OutputDir, p.TriggerCount)
	}
	return nil
}

func runPresetsAdd(store *presets.Store) error {
	p, err := presets.AddInteractive(store)
	if err != nil {
		return fmt.Errorf("failed to add preset: %w", err)
	}
	fmt.Printf("Added preset %s for %s/%s\n", p.ID, p.Platform, p.ChannelName)
	return nil
}

func runPresetsRemove(store *presets.Store, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: livecap-admin presets remove <preset-id>")
	}
	if err := store.Remove(args[0]); err != nil {
		return fmt.Errorf("failed to remove preset: %w", err)
	}
	fmt.Printf("Removed preset %s\n", args[0])
	return nil
}

func runPresetsSetEnabled(store *presets.Store, args []string, enabled bool) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: livecap-admin presets <enable|disable> <preset-id>")
	}
	if err := store.SetEnabled(args[0], enabled); err != nil {
		return fmt.Errorf("failed to update preset: %w", err)
	}
	word := "disabled"
	if enabled {
		word = "enabled"
	}
	fmt.Printf("Preset %s %s\n", args[0], word)
	return nil
}

// runValidate loads and validates the configuration file.
func runValidate(args []string) error {
	configPath, _ := extractConfigFlag(args)

	fmt.Printf("Validating configuration: %s\n\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	fmt.Printf("✓ Max concurrent downloads: %d\n", cfg.Queue.MaxConcurrentDownloads)
	fmt.Printf("✓ Cooldown duration: %s\n", cfg.Queue.CooldownDuration)
	fmt.Printf("✓ Notification level: %s\n", cfg.NotificationLevel)

	return nil
}

// StatusOutput is the JSON shape returned by the status command.
type StatusOutput struct {
	ConfigPath    string               `json:"config_path"`
	PresetCount   int                  `json:"preset_count"`
	EnabledCount  int                  `json:"enabled_count"`
	HealthAddr    string               `json:"health_addr,omitempty"`
	EngineHealthy *bool                `json:"engine_healthy,omitempty"`
	Services      []health.ServiceInfo `json:"services,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// runStatus reports preset store contents and, when the engine's health
// endpoint is reachable, its live service status.
func runStatus(args []string) error {
	configPath, rest := extractConfigFlag(args)
	jsonOutput := false
	for _, a := range rest {
		if a == "--json" || a == "-j" {
			jsonOutput = true
		}
	}

	status := StatusOutput{ConfigPath: configPath}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		cfg = config.DefaultConfig()
		status.Error = fmt.Sprintf("config load error: %v", err)
	}

	presetsPath := presets.DefaultPath(cfg, filepath.Dir(configPath))
	if store, err := presets.Open(presetsPath); err == nil {
		all := store.All()
		status.PresetCount = len(all)
		for _, p := range all {
			if p.Enabled {
				status.EnabledCount++
			}
		}
	} else if status.Error == "" {
		status.Error = fmt.Sprintf("preset store error: %v", err)
	}

	if cfg.Monitor.Enabled {
		status.HealthAddr = cfg.Monitor.HealthAddr
		if resp, err := fetchHealth(cfg.Monitor.HealthAddr); err == nil {
			healthy := resp.Status == "healthy"
			status.EngineHealthy = &healthy
			status.Services = resp.Services
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Println("LiveCap Status")
	fmt.Println("==============")
	fmt.Println()
	fmt.Printf("Config:   %s\n", status.ConfigPath)
	fmt.Printf("Presets:  %d total, %d enabled\n", status.PresetCount, status.EnabledCount)
	if status.Error != "" {
		fmt.Printf("Error:    %s\n", status.Error)
	}
	fmt.Println()
	if status.HealthAddr == "" {
		fmt.Println("Monitor endpoint disabled in configuration")
		return nil
	}
	if status.EngineHealthy == nil {
		fmt.Printf("Engine:   unreachable at %s\n", status.HealthAddr)
		return nil
	}
	if *status.EngineHealthy {
		fmt.Printf("Engine:   healthy (%s)\n", status.HealthAddr)
	} else {
		fmt.Printf("Engine:   unhealthy (%s)\n", status.HealthAddr)
	}
	for _, svc := range status.Services {
		state := "ok"
		if !svc.Healthy {
			state = "FAILING"
		}
		fmt.Printf("  - %-20s %s (uptime %s, restarts %d)\n", svc.Name, state, svc.Uptime, svc.Restarts)
	}

	return nil
}

// fetchHealth queries livecap-engine's /healthz endpoint.
func fetchHealth(addr string) (*health.Response, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out health.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// runDiagnose runs the diagnostics suite.
func runDiagnose(args []string) error {
	opts := diagnostics.DefaultOptions()
	opts.ConfigPath, args = extractConfigFlag(args)

	jsonOutput := false
	for _, a := range args {
		switch {
		case a == "--json":
			jsonOutput = true
		case a == "--mode=quick":
			opts.Mode = diagnostics.ModeQuick
		case a == "--mode=debug":
			opts.Mode = diagnostics.ModeDebug
		case strings.HasPrefix(a, "--presets="):
			opts.PresetsPath = strings.TrimPrefix(a, "--presets=")
		}
	}

	if opts.PresetsPath == "" {
		if cfg, err := config.LoadConfig(opts.ConfigPath); err == nil {
			opts.PresetsPath = presets.DefaultPath(cfg, filepath.Dir(opts.ConfigPath))
		}
	}

	runner := diagnostics.NewRunner(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	report, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("diagnostics failed: %w", err)
	}

	if jsonOutput {
		data, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	diagnostics.PrintReport(os.Stdout, report)

	if !report.Healthy {
		os.Exit(exitError)
	}
	return nil
}

// runUpdate checks for and installs updates to livecap-admin/livecap-engine.
func runUpdate(args []string) error {
	checkOnly := false
	force := false

	for _, arg := range args {
		switch arg {
		case "--check":
			checkOnly = true
		case "--force":
			force = true
		}
	}

	fmt.Println("LiveCap Update")
	fmt.Println("==============")
	fmt.Println()

	u := updater.New(
		updater.WithOwner("corvidwatch"),
		updater.WithRepo("livecap"),
		updater.WithCurrentVersion(Version),
	)

	ctx := context.Background()

	fmt.Println("Checking for updates...")
	info, err := u.CheckForUpdates(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	fmt.Println(updater.FormatUpdateInfo(info))

	if !info.UpdateAvailable {
		return nil
	}

	if checkOnly {
		fmt.Println("\nRun 'livecap-admin update' without --check to install the update.")
		return nil
	}

	if !force {
		fmt.Print("Download and install update? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			fmt.Println("Update cancelled.")
			return nil
		}
	}

	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to determine binary path: %w", err)
	}
	binaryPath, err = filepath.EvalSymlinks(binaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve binary path: %w", err)
	}

	if strings.HasPrefix(binaryPath, "/usr/") && os.Geteuid() != 0 {
		return fmt.Errorf("update requires root privileges for %s (run with sudo)", binaryPath)
	}

	fmt.Println()
	fmt.Println("Downloading update...")

	lastPercent := 0
	progress := func(downloaded, total int64) {
		if total > 0 {
			percent := int(float64(downloaded) / float64(total) * 100)
			if percent > lastPercent+5 || percent == 100 {
				fmt.Printf("\rProgress: %d%%", percent)
				lastPercent = percent
			}
		}
	}

	if err := u.Update(ctx, info, binaryPath, progress); err != nil {
		fmt.Println()
		if u.HasBackup(binaryPath) {
			fmt.Println("Update failed. Rolling back...")
			if rbErr := u.Rollback(binaryPath); rbErr != nil {
				return fmt.Errorf("update failed (%w) and rollback failed (%w)", err, rbErr)
			}
			fmt.Println("Rolled back to previous version.")
		}
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Println()
	fmt.Printf("Successfully updated to %s!\n", info.LatestVersion)
	fmt.Println("Restart livecap-engine to use the new version.")

	return nil
}

// openPresetStore resolves the preset store path from a config path and
// opens it.
func openPresetStore(configPath string) (*presets.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	path := presets.DefaultPath(cfg, filepath.Dir(configPath))
	store, err := presets.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open preset store %s: %w", path, err)
	}
	return store, nil
}

// extractConfigFlag pulls --config=PATH (or --config PATH) out of args,
// returning the resolved path (default if absent) and the remaining args.
func extractConfigFlag(args []string) (string, []string) {
	configPath := config.ConfigFilePath
	var rest []string

	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		default:
			rest = append(rest, args[i])
		}
	}

	return configPath, rest
}
