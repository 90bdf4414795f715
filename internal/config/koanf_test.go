package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAMLFixture(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	return path
}

func TestKoanfConfigLoadsYAML(t *testing.T) {
	path := writeYAMLFixture(t, `
queue:
  max_concurrent_downloads: 4
  cooldown_duration: 120s
  disk_preflight_mb: 1000
twitch:
  topics_per_connection: 50
youtube:
  poll_interval: 60s
  probe_concurrency: 3
recorder:
  binary_path: yt-dlp
notification_level: toast
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path), WithEnvPrefix("LIVECAP_TEST_NOPE"))
	if err != nil {
		t.Fatalf("NewKoanfConfig() error = %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Queue.MaxConcurrentDownloads != 4 {
		t.Errorf("MaxConcurrentDownloads = %d, want 4", cfg.Queue.MaxConcurrentDownloads)
	}
	if cfg.Queue.CooldownDuration != 120*time.Second {
		t.Errorf("CooldownDuration = %v, want 120s", cfg.Queue.CooldownDuration)
	}
	if cfg.NotificationLevel != "toast" {
		t.Errorf("NotificationLevel = %q, want toast", cfg.NotificationLevel)
	}
}

func TestKoanfConfigEnvOverridesYAML(t *testing.T) {
	path := writeYAMLFixture(t, `
queue:
  max_concurrent_downloads: 3
  disk_preflight_mb: 500
twitch:
  topics_per_connection: 50
youtube:
  poll_interval: 90s
  probe_concurrency: 3
recorder:
  binary_path: yt-dlp
`)

	t.Setenv("LIVECAP_QUEUE_MAX_CONCURRENT_DOWNLOADS", "9")
	t.Setenv("LIVECAP_NOTIFICATION_LEVEL", "none")

	kc, err := NewKoanfConfig(WithYAMLFile(path), WithEnvPrefix("LIVECAP"))
	if err != nil {
		t.Fatalf("NewKoanfConfig() error = %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Queue.MaxConcurrentDownloads != 9 {
		t.Errorf("MaxConcurrentDownloads = %d, want 9 (env override)", cfg.Queue.MaxConcurrentDownloads)
	}
	if cfg.NotificationLevel != "none" {
		t.Errorf("NotificationLevel = %q, want none (env override)", cfg.NotificationLevel)
	}
	// Disk preflight untouched by env, should still come from YAML.
	if cfg.Queue.DiskPreflightMB != 500 {
		t.Errorf("DiskPreflightMB = %d, want 500 (from YAML)", cfg.Queue.DiskPreflightMB)
	}
}

func TestKoanfConfigReload(t *testing.T) {
	path := writeYAMLFixture(t, `
queue:
  max_concurrent_downloads: 2
  disk_preflight_mb: 500
twitch:
  topics_per_connection: 50
youtube:
  poll_interval: 90s
  probe_concurrency: 3
recorder:
  binary_path: yt-dlp
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path), WithEnvPrefix("LIVECAP_TEST_RELOAD"))
	if err != nil {
		t.Fatalf("NewKoanfConfig() error = %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.MaxConcurrentDownloads != 2 {
		t.Fatalf("initial MaxConcurrentDownloads = %d, want 2", cfg.Queue.MaxConcurrentDownloads)
	}

	updated := `
queue:
  max_concurrent_downloads: 6
  disk_preflight_mb: 500
twitch:
  topics_per_connection: 50
youtube:
  poll_interval: 90s
  probe_concurrency: 3
recorder:
  binary_path: yt-dlp
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to rewrite config fixture: %v", err)
	}

	if err := kc.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	cfg, err = kc.Load()
	if err != nil {
		t.Fatalf("Load() after reload error = %v", err)
	}
	if cfg.Queue.MaxConcurrentDownloads != 6 {
		t.Errorf("MaxConcurrentDownloads after reload = %d, want 6", cfg.Queue.MaxConcurrentDownloads)
	}
}

func TestKoanfConfigWatchRespectsContextCancellation(t *testing.T) {
	path := writeYAMLFixture(t, `
queue:
  max_concurrent_downloads: 3
  disk_preflight_mb: 500
twitch:
  topics_per_connection: 50
youtube:
  poll_interval: 90s
  probe_concurrency: 3
recorder:
  binary_path: yt-dlp
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path), WithEnvPrefix("LIVECAP_TEST_WATCH"))
	if err != nil {
		t.Fatalf("NewKoanfConfig() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := kc.Watch(ctx, func(string, error) {}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
}

func TestKoanfConfigWatchRequiresFilePath(t *testing.T) {
	kc, err := NewKoanfConfig(WithEnvPrefix("LIVECAP_TEST_NOFILE"))
	if err != nil {
		t.Fatalf("NewKoanfConfig() error = %v", err)
	}

	if err := kc.Watch(context.Background(), func(string, error) {}); err == nil {
		t.Error("Watch() without a file path = nil error, want error")
	}
}

func TestKoanfConfigAccessors(t *testing.T) {
	path := writeYAMLFixture(t, `
queue:
  max_concurrent_downloads: 3
  disk_preflight_mb: 500
twitch:
  topics_per_connection: 50
youtube:
  poll_interval: 90s
  probe_concurrency: 3
recorder:
  binary_path: yt-dlp
notification_level: both
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path), WithEnvPrefix("LIVECAP_TEST_ACCESS"))
	if err != nil {
		t.Fatalf("NewKoanfConfig() error = %v", err)
	}

	if got := kc.GetString("notification_level"); got != "both" {
		t.Errorf("GetString(notification_level) = %q, want both", got)
	}
	if got := kc.GetInt("queue.max_concurrent_downloads"); got != 3 {
		t.Errorf("GetInt(queue.max_concurrent_downloads) = %d, want 3", got)
	}
	if !kc.Exists("recorder.binary_path") {
		t.Error("Exists(recorder.binary_path) = false, want true")
	}
	if all := kc.All(); len(all) == 0 {
		t.Error("All() returned empty map")
	}
}
