// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

// ConfigFilePath is the default location for the configuration file.
const ConfigFilePath = "/etc/livecap/config.yaml"

// Config represents the complete LiveCap configuration.
type Config struct {
	// Queue settings: concurrency cap and cooldown/dedup windows.
	Queue QueueConfig `yaml:"queue" koanf:"queue"`

	// Twitch PubSub detector settings.
	Twitch TwitchConfig `yaml:"twitch" koanf:"twitch"`

	// YouTube RSS detector settings.
	YouTube YouTubeConfig `yaml:"youtube" koanf:"youtube"`

	// Recorder (capture binary) settings.
	Recorder RecorderConfig `yaml:"recorder" koanf:"recorder"`

	// Monitor settings for the health/metrics endpoint.
	Monitor MonitorConfig `yaml:"monitor" koanf:"monitor"`

	// PresetsFile is the path to the JSON preset store.
	PresetsFile string `yaml:"presets_file" koanf:"presets_file"`

	// Notification level: "os", "toast", "both", or "none".
	NotificationLevel string `yaml:"notification_level" koanf:"notification_level"`
}

// QueueConfig contains capture-queue and trigger-pipeline admission settings.
type QueueConfig struct {
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads" koanf:"max_concurrent_downloads"`
	CooldownDuration       time.Duration `yaml:"cooldown_duration" koanf:"cooldown_duration"`
	LedgerRetention        time.Duration `yaml:"ledger_retention" koanf:"ledger_retention"`
	DiskPreflightMB        int64         `yaml:"disk_preflight_mb" koanf:"disk_preflight_mb"`
}

// TwitchConfig contains PubSub connection settings.
type TwitchConfig struct {
	TopicsPerConnection int           `yaml:"topics_per_connection" koanf:"topics_per_connection"`
	PingInterval        time.Duration `yaml:"ping_interval" koanf:"ping_interval"`
	InitialRestartDelay time.Duration `yaml:"initial_restart_delay" koanf:"initial_restart_delay"`
	MaxRestartDelay     time.Duration `yaml:"max_restart_delay" koanf:"max_restart_delay"`
	PubSubURL           string        `yaml:"pubsub_url" koanf:"pubsub_url"`
}

// YouTubeConfig contains RSS polling settings.
type YouTubeConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval" koanf:"poll_interval"`
	RateLimitBackoff    time.Duration `yaml:"rate_limit_backoff" koanf:"rate_limit_backoff"`
	ProbeConcurrency    int           `yaml:"probe_concurrency" koanf:"probe_concurrency"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout" koanf:"probe_timeout"`
	MaxEntriesPerCycle  int           `yaml:"max_entries_per_cycle" koanf:"max_entries_per_cycle"`
	FeedBaseURL         string        `yaml:"feed_base_url" koanf:"feed_base_url"`
}

// RecorderConfig contains capture-binary settings.
type RecorderConfig struct {
	BinaryPath     string        `yaml:"binary_path" koanf:"binary_path"`
	CookieFile     string        `yaml:"cookie_file" koanf:"cookie_file"`
	StopTimeout    time.Duration `yaml:"stop_timeout" koanf:"stop_timeout"`
	LogDir         string        `yaml:"log_dir" koanf:"log_dir"`
	LogMaxSizeMB   int64         `yaml:"log_max_size_mb" koanf:"log_max_size_mb"`
	AutoUpdate     bool          `yaml:"auto_update" koanf:"auto_update"`
}

// MonitorConfig contains health monitoring settings.
type MonitorConfig struct {
	Enabled    bool   `yaml:"enabled" koanf:"enabled"`
	HealthAddr string `yaml:"health_addr" koanf:"health_addr"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 - Config path is from administrator-controlled configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// atomicFile abstracts file operations used by Save for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

// atomicCreateTemp is the injectable temp-file creator used by Save.
type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save writes the configuration to a YAML file, atomically: write to a
// temp file in the same directory, sync, then rename into place. A crash
// mid-write leaves either the old file or the new file, never a partial one.
// Callers that mutate a config already on disk should prefer
// BackupBeforeSave, which takes a backup of the previous file first.
func (c *Config) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *Config) saveWith(path string, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)

	tmpFile, err := createTemp(dir, ".config.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}

	// Config file may contain sensitive settings (cookie file path, health
	// addr) and should not be world-readable.
	// #nosec G302 - Config file restricted to owner+group for security
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	success = true
	return nil
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	if c.Queue.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("queue: max_concurrent_downloads must be positive")
	}
	if c.Queue.CooldownDuration < 0 {
		return fmt.Errorf("queue: cooldown_duration must not be negative")
	}
	if c.Queue.DiskPreflightMB < 0 {
		return fmt.Errorf("queue: disk_preflight_mb must not be negative")
	}

	if c.Twitch.TopicsPerConnection <= 0 {
		return fmt.Errorf("twitch: topics_per_connection must be positive")
	}
	if c.Twitch.TopicsPerConnection > 50 {
		return fmt.Errorf("twitch: topics_per_connection must not exceed 50")
	}

	if c.YouTube.PollInterval <= 0 {
		return fmt.Errorf("youtube: poll_interval must be positive")
	}
	if c.YouTube.ProbeConcurrency <= 0 {
		return fmt.Errorf("youtube: probe_concurrency must be positive")
	}

	if c.Recorder.BinaryPath == "" {
		return fmt.Errorf("recorder: binary_path cannot be empty")
	}

	switch c.NotificationLevel {
	case "os", "toast", "both", "none", "":
		// valid
	default:
		return fmt.Errorf("notification_level must be one of os, toast, both, none (got %q)", c.NotificationLevel)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults: 3 concurrent
// downloads, 300s cooldown, 500 MiB disk preflight, 90s YouTube poll interval
// with a semaphore of 3, 50 Twitch topics per connection with 1s/120s backoff
// bounds.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			MaxConcurrentDownloads: 3,
			CooldownDuration:       300 * time.Second,
			LedgerRetention:        24 * time.Hour,
			DiskPreflightMB:        500,
		},
		Twitch: TwitchConfig{
			TopicsPerConnection: 50,
			PingInterval:        240 * time.Second,
			InitialRestartDelay: 1 * time.Second,
			MaxRestartDelay:     120 * time.Second,
			PubSubURL:           "wss://pubsub-edge.twitch.tv",
		},
		YouTube: YouTubeConfig{
			PollInterval:       90 * time.Second,
			RateLimitBackoff:   5 * time.Minute,
			ProbeConcurrency:   3,
			ProbeTimeout:       30 * time.Second,
			MaxEntriesPerCycle: 5,
			FeedBaseURL:        "https://www.youtube.com/feeds/videos.xml",
		},
		Recorder: RecorderConfig{
			BinaryPath:   "yt-dlp",
			StopTimeout:  5 * time.Second,
			LogMaxSizeMB: 10,
			AutoUpdate:   false,
		},
		Monitor: MonitorConfig{
			Enabled:    true,
			HealthAddr: "127.0.0.1:9998",
		},
		PresetsFile:       "scheduled_presets.json",
		NotificationLevel: "both",
	}
}
