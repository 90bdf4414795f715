// SPDX-License-Identifier: MIT

// Package diagnostics runs a battery of system health checks for the
// capture engine: the capture binary, connectivity to Twitch/YouTube,
// preset store integrity, and the same host-resource checks (disk, memory,
// file descriptors, entropy, inotify watches) any long-running daemon needs.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/corvidwatch/livecap/internal/config"
	"github.com/corvidwatch/livecap/internal/presets"
	"github.com/corvidwatch/livecap/internal/ytdlp"
)

// execCommand runs a short-lived diagnostic command and returns its
// combined output. Diagnostic checks treat a failure to run the command
// (missing binary, non-zero exit) as "skip this check" rather than an error.
func execCommand(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(cctx, name, args...).CombinedOutput()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CheckResult represents the result of a single diagnostic check.
type CheckResult struct {
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Status      CheckStatus   `json:"status"`
	Message     string        `json:"message"`
	Details     string        `json:"details,omitempty"`
	Duration    time.Duration `json:"duration"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// CheckStatus indicates the result of a check.
type CheckStatus string

const (
	StatusOK       CheckStatus = "OK"
	StatusWarning  CheckStatus = "WARNING"
	StatusCritical CheckStatus = "CRITICAL"
	StatusSkipped  CheckStatus = "SKIPPED"
	StatusError    CheckStatus = "ERROR"
)

// DiagnosticReport contains results from all diagnostic checks.
type DiagnosticReport struct {
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
	SystemInfo *SystemInfo   `json:"system_info"`
	Checks     []CheckResult `json:"checks"`
	Summary    *Summary      `json:"summary"`
	Healthy    bool          `json:"healthy"`
}

// SystemInfo contains basic system information.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Kernel       string `json:"kernel"`
	Architecture string `json:"architecture"`
	CPUs         int    `json:"cpus"`
	Memory       int64  `json:"memory_bytes"`
	Uptime       string `json:"uptime"`
	GoVersion    string `json:"go_version"`
}

// Summary contains a summary of check results.
type Summary struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
	Skipped  int `json:"skipped"`
	Error    int `json:"error"`
}

// CheckMode determines which checks to run.
type CheckMode string

const (
	ModeQuick CheckMode = "quick" // Essential checks only
	ModeFull  CheckMode = "full"  // All checks (default)
	ModeDebug CheckMode = "debug" // All checks with verbose output
)

// Diagnostic thresholds - all configurable for different deployment scenarios.
const (
	DiskUsageCriticalPercent = 95
	DiskUsageWarningPercent  = 85

	FDUsageCriticalPercent = 80
	FDUsageWarningPercent  = 50

	MemoryUsageCriticalPercent = 90
	MemoryUsageWarningPercent  = 75

	MinInotifyWatches = 8192

	TimeWaitWarningThreshold = 1000

	MinEntropyBytes = 256
)

// Options configures the diagnostic run.
type Options struct {
	Mode        CheckMode
	ConfigPath  string
	PresetsPath string
	LogDir      string
	Output      io.Writer
	Verbose     bool
}

// DefaultOptions returns default diagnostic options.
func DefaultOptions() Options {
	return Options{
		Mode:       ModeFull,
		ConfigPath: config.ConfigFilePath,
		LogDir:     "/var/log/livecap",
		Output:     os.Stdout,
		Verbose:    false,
	}
}

// Runner executes diagnostic checks.
type Runner struct {
	opts Options
}

// NewRunner creates a new diagnostic runner.
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Run executes all diagnostic checks and returns a report.
func (r *Runner) Run(ctx context.Context) (*DiagnosticReport, error) {
	start := time.Now()

	report := &DiagnosticReport{
		Timestamp:  start,
		SystemInfo: r.collectSystemInfo(),
		Summary:    &Summary{},
	}

	checks := r.getChecks()

	for _, check := range checks {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
			result := check(ctx)
			report.Checks = append(report.Checks, result)

			report.Summary.Total++
			switch result.Status {
			case StatusOK:
				report.Summary.OK++
			case StatusWarning:
				report.Summary.Warning++
			case StatusCritical:
				report.Summary.Critical++
			case StatusSkipped:
				report.Summary.Skipped++
			case StatusError:
				report.Summary.Error++
			}
		}
	}

	report.Duration = time.Since(start)
	report.Healthy = report.Summary.Critical == 0 && report.Summary.Error == 0

	return report, nil
}

// getChecks returns the checks to run based on mode.
func (r *Runner) getChecks() []func(context.Context) CheckResult {
	quickChecks := []func(context.Context) CheckResult{
		r.checkCaptureBinary,
		r.checkConfig,
		r.checkPresetsStore,
	}

	if r.opts.Mode == ModeQuick {
		return quickChecks
	}

	return []func(context.Context) CheckResult{
		r.checkSystemInfo,
		r.checkCaptureBinary,
		r.checkCaptureCapabilities,
		r.checkConfig,
		r.checkPresetsStore,
		r.checkTwitchConnectivity,
		r.checkYouTubeConnectivity,
		r.checkHealthEndpoint,
		r.checkLogDir,
		r.checkDiskSpace,
		r.checkFileDescriptors,
		r.checkMemory,
		r.checkTimeSynchronization,
		r.checkEngineService,
		r.checkInotifyLimits,
		r.checkTCPResources,
		r.checkEntropy,
	}
}

// collectSystemInfo gathers basic system information.
func (r *Runner) collectSystemInfo() *SystemInfo {
	info := &SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUs:         runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if h, err := os.Hostname(); err == nil {
		info.Hostname = h
	}

	if data, err := os.ReadFile("/proc/version"); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			info.Kernel = parts[2]
		}
	}

	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "MemTotal:") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
						info.Memory = kb * 1024
					}
				}
				break
			}
		}
	}

	if data, err := os.ReadFile("/proc/uptime"); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) >= 1 {
			if secs, err := strconv.ParseFloat(fields[0], 64); err == nil {
				d := time.Duration(secs) * time.Second
				info.Uptime = formatDuration(d)
			}
		}
	}

	return info
}

// Individual check implementations.

func (r *Runner) checkSystemInfo(ctx context.Context) CheckResult {
	start := time.Now()
	return CheckResult{
		Name:     "System Info",
		Category: "System",
		Status:   StatusOK,
		Message:  "System information collected",
		Duration: time.Since(start),
	}
}

func (r *Runner) checkCaptureBinary(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Capture Binary",
		Category: "Tools",
	}

	path, err := ytdlp.Locate("")
	if err != nil {
		result.Status = StatusCritical
		result.Message = "yt-dlp not found on PATH"
		result.Suggestions = append(result.Suggestions, "Install yt-dlp: pip install -U yt-dlp")
		result.Duration = time.Since(start)
		return result
	}

	version, err := ytdlp.Version(ctx, path)
	if err != nil {
		result.Status = StatusWarning
		result.Message = "yt-dlp found but --version failed"
		result.Details = path
		result.Duration = time.Since(start)
		return result
	}

	result.Status = StatusOK
	result.Message = "yt-dlp available"
	result.Details = fmt.Sprintf("%s (%s)", path, version)
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkCaptureCapabilities(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Capture Capabilities",
		Category: "Tools",
	}

	path, err := ytdlp.Locate("")
	if err != nil {
		result.Status = StatusSkipped
		result.Message = "skipped: yt-dlp not found"
		result.Duration = time.Since(start)
		return result
	}

	liveFromStart, _ := ytdlp.SupportsLiveFromStart(ctx, path)
	downloadSections, _ := ytdlp.SupportsDownloadSections(ctx, path)

	if liveFromStart && downloadSections {
		result.Status = StatusOK
		result.Message = "yt-dlp supports --live-from-start and --download-sections"
	} else {
		result.Status = StatusWarning
		result.Message = "yt-dlp is missing flags this engine depends on"
		result.Suggestions = append(result.Suggestions, "Update yt-dlp: yt-dlp -U")
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkConfig(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Configuration",
		Category: "Config",
	}

	if _, err := os.Stat(r.opts.ConfigPath); os.IsNotExist(err) {
		result.Status = StatusWarning
		result.Message = "Configuration file not found, defaults will be used"
		result.Details = r.opts.ConfigPath
		result.Duration = time.Since(start)
		return result
	}

	cfg, err := config.LoadConfig(r.opts.ConfigPath)
	if err != nil {
		result.Status = StatusCritical
		result.Message = "Configuration file failed to load"
		result.Details = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	result.Status = StatusOK
	result.Message = "Configuration file valid"
	result.Details = fmt.Sprintf("%s (max %d concurrent downloads, %s cooldown)",
		r.opts.ConfigPath, cfg.Queue.MaxConcurrentDownloads, cfg.Queue.CooldownDuration)
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkPresetsStore(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Preset Store",
		Category: "Config",
	}

	path := r.opts.PresetsPath
	if path == "" {
		result.Status = StatusSkipped
		result.Message = "no preset store path configured"
		result.Duration = time.Since(start)
		return result
	}

	store, err := presets.Open(path)
	if err != nil {
		result.Status = StatusCritical
		result.Message = "Preset store failed to load"
		result.Details = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	all := store.All()
	enabled := 0
	for _, p := range all {
		if p.Enabled {
			enabled++
		}
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("%d preset(s), %d enabled", len(all), enabled)
	result.Details = path
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkTwitchConnectivity(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Twitch PubSub",
		Category: "Connectivity",
	}

	conn, err := (&net.Dialer{Timeout: 3 * time.Second}).DialContext(ctx, "tcp", "pubsub-edge.twitch.tv:443")
	if err != nil {
		result.Status = StatusWarning
		result.Message = "pubsub-edge.twitch.tv:443 not reachable"
		result.Details = err.Error()
	} else {
		_ = conn.Close()
		result.Status = StatusOK
		result.Message = "pubsub-edge.twitch.tv:443 reachable"
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkYouTubeConnectivity(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "YouTube Feeds",
		Category: "Connectivity",
	}

	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://www.youtube.com/feeds/videos.xml", nil)
	if err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Status = StatusWarning
		result.Message = "YouTube RSS endpoint not reachable"
		result.Details = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	_ = resp.Body.Close()

	result.Status = StatusOK
	result.Message = fmt.Sprintf("YouTube RSS endpoint reachable (status %d)", resp.StatusCode)
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkHealthEndpoint(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Health Endpoint",
		Category: "Services",
	}

	addr := "127.0.0.1:9998"
	if cfg, err := config.LoadConfig(r.opts.ConfigPath); err == nil && cfg.Monitor.HealthAddr != "" {
		addr = cfg.Monitor.HealthAddr
	}

	if !isPortOpen(addr) {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("health endpoint %s not accessible", addr)
		result.Suggestions = append(result.Suggestions, "Start livecap-engine or check monitor.enabled in the config")
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("health endpoint %s reachable", addr)
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkLogDir(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Log Directory",
		Category: "System",
	}

	if _, err := os.Stat(r.opts.LogDir); os.IsNotExist(err) {
		result.Status = StatusOK
		result.Message = "Log directory will be created on first capture"
		result.Duration = time.Since(start)
		return result
	}

	var totalSize int64
	_ = filepath.Walk(r.opts.LogDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	result.Status = StatusOK
	result.Message = fmt.Sprintf("Log directory size: %s", formatBytes(totalSize))
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkDiskSpace(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Disk Space",
		Category: "Resources",
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs("/", &stat); err != nil {
		result.Status = StatusError
		result.Message = "Failed to check disk space"
		result.Duration = time.Since(start)
		return result
	}

	// #nosec G115 -- Bsize is always positive on Linux filesystems
	available := stat.Bavail * uint64(stat.Bsize)
	// #nosec G115 -- Bsize is always positive on Linux filesystems
	total := stat.Blocks * uint64(stat.Bsize)
	usedPercent := 100.0 - (float64(available)/float64(total))*100.0

	if usedPercent > DiskUsageCriticalPercent {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("Disk usage critical: %.1f%%", usedPercent)
		result.Suggestions = append(result.Suggestions, "Free up disk space before the trigger pipeline's preflight check starts rejecting captures")
	} else if usedPercent > DiskUsageWarningPercent {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Disk usage high: %.1f%%", usedPercent)
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Disk usage: %.1f%% (%.1f GB available)", usedPercent, float64(available)/(1024*1024*1024))
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkFileDescriptors(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "File Descriptors",
		Category: "Resources",
	}

	data, err := os.ReadFile("/proc/sys/fs/file-nr")
	if err != nil {
		result.Status = StatusError
		result.Message = "Failed to read file descriptor info"
		result.Duration = time.Since(start)
		return result
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		result.Status = StatusError
		result.Message = "Invalid file-nr format"
		result.Duration = time.Since(start)
		return result
	}

	used, _ := strconv.ParseInt(fields[0], 10, 64)
	max, _ := strconv.ParseInt(fields[2], 10, 64)
	usedPercent := float64(used) / float64(max) * 100

	if usedPercent > FDUsageCriticalPercent {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("FD usage critical: %.1f%% (%d/%d)", usedPercent, used, max)
	} else if usedPercent > FDUsageWarningPercent {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("FD usage elevated: %.1f%% (%d/%d)", usedPercent, used, max)
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("FD usage normal: %.1f%% (%d/%d)", usedPercent, used, max)
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkMemory(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Memory",
		Category: "Resources",
	}

	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		result.Status = StatusError
		result.Message = "Failed to read memory info"
		result.Duration = time.Since(start)
		return result
	}

	var total, available int64
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				total, _ = strconv.ParseInt(fields[1], 10, 64)
				total *= 1024
			}
		} else if strings.HasPrefix(line, "MemAvailable:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				available, _ = strconv.ParseInt(fields[1], 10, 64)
				available *= 1024
			}
		}
	}

	usedPercent := 100.0 - (float64(available)/float64(total))*100.0

	if usedPercent > MemoryUsageCriticalPercent {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("Memory usage critical: %.1f%%", usedPercent)
	} else if usedPercent > MemoryUsageWarningPercent {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Memory usage elevated: %.1f%%", usedPercent)
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Memory usage: %.1f%% (%s available)", usedPercent, formatBytes(available))
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkTimeSynchronization(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Time Sync",
		Category: "System",
	}

	out, err := execCommand(ctx, "timedatectl", "status")
	if err != nil {
		result.Status = StatusOK
		result.Message = "Time sync check skipped (timedatectl not available)"
		result.Duration = time.Since(start)
		return result
	}

	if strings.Contains(out, "synchronized: yes") {
		result.Status = StatusOK
		result.Message = "System time synchronized"
	} else {
		result.Status = StatusWarning
		result.Message = "System time may not be synchronized"
		result.Suggestions = append(result.Suggestions, "Trigger history and capture filenames depend on an accurate clock")
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkEngineService(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Engine Service",
		Category: "Services",
	}

	out, err := execCommand(ctx, "systemctl", "is-active", "livecap-engine")
	if err != nil {
		result.Status = StatusWarning
		result.Message = "livecap-engine service not running (or systemd unavailable)"
		result.Duration = time.Since(start)
		return result
	}

	status := strings.TrimSpace(out)
	if status == "active" {
		result.Status = StatusOK
		result.Message = "livecap-engine service running"
	} else {
		result.Status = StatusWarning
		result.Message = "livecap-engine service state: " + status
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkInotifyLimits(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "inotify Limits",
		Category: "Resources",
	}

	data, err := os.ReadFile("/proc/sys/fs/inotify/max_user_watches")
	if err != nil {
		result.Status = StatusOK
		result.Message = "inotify check skipped"
		result.Duration = time.Since(start)
		return result
	}

	maxWatches, _ := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)

	if maxWatches < MinInotifyWatches {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("inotify max_user_watches low: %d", maxWatches)
		result.Suggestions = append(result.Suggestions, "Increase with: sysctl fs.inotify.max_user_watches=65536 (the config file watcher needs headroom)")
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("inotify max_user_watches: %d", maxWatches)
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkTCPResources(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "TCP Resources",
		Category: "Network",
	}

	out, err := execCommand(ctx, "ss", "-tan", "state", "time-wait")
	if err != nil {
		result.Status = StatusOK
		result.Message = "TCP check skipped"
		result.Duration = time.Since(start)
		return result
	}

	timeWaitCount := strings.Count(out, "\n") - 1
	if timeWaitCount < 0 {
		timeWaitCount = 0
	}

	if timeWaitCount > TimeWaitWarningThreshold {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("High TIME_WAIT connections: %d", timeWaitCount)
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("TIME_WAIT connections: %d", timeWaitCount)
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkEntropy(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:     "Entropy",
		Category: "System",
	}

	data, err := os.ReadFile("/proc/sys/kernel/random/entropy_avail")
	if err != nil {
		result.Status = StatusOK
		result.Message = "Entropy check skipped"
		result.Duration = time.Since(start)
		return result
	}

	entropy, _ := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)

	if entropy < MinEntropyBytes {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Entropy pool low: %d", entropy)
		result.Suggestions = append(result.Suggestions, "Low entropy slows preset/task UUID generation; install haveged or rng-tools")
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Entropy pool: %d", entropy)
	}

	result.Duration = time.Since(start)
	return result
}

// Helper functions.

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func isPortOpen(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// PrintReport prints a formatted diagnostic report.
func PrintReport(w io.Writer, report *DiagnosticReport) {
	_, _ = fmt.Fprintf(w, "LiveCap Diagnostics Report\n")
	_, _ = fmt.Fprintf(w, "==========================\n\n")

	_, _ = fmt.Fprintf(w, "System: %s (%s/%s)\n", report.SystemInfo.Hostname, report.SystemInfo.OS, report.SystemInfo.Architecture)
	_, _ = fmt.Fprintf(w, "Kernel: %s\n", report.SystemInfo.Kernel)
	_, _ = fmt.Fprintf(w, "Uptime: %s\n", report.SystemInfo.Uptime)
	_, _ = fmt.Fprintf(w, "Time: %s\n\n", report.Timestamp.Format(time.RFC3339))

	categories := make(map[string][]CheckResult)
	var order []string
	for _, check := range report.Checks {
		if _, seen := categories[check.Category]; !seen {
			order = append(order, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, category := range order {
		checks := categories[category]
		_, _ = fmt.Fprintf(w, "\n%s\n%s\n", category, strings.Repeat("-", len(category)))
		for _, check := range checks {
			status := "✓"
			switch check.Status {
			case StatusWarning:
				status = "⚠"
			case StatusCritical:
				status = "✗"
			case StatusError:
				status = "!"
			case StatusSkipped:
				status = "○"
			}
			_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", status, check.Name, check.Message)
			if check.Details != "" {
				_, _ = fmt.Fprintf(w, "    %s\n", check.Details)
			}
			for _, suggestion := range check.Suggestions {
				_, _ = fmt.Fprintf(w, "    → %s\n", suggestion)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\n\nSummary\n-------\n")
	_, _ = fmt.Fprintf(w, "Total: %d | OK: %d | Warning: %d | Critical: %d | Error: %d | Skipped: %d\n",
		report.Summary.Total, report.Summary.OK, report.Summary.Warning,
		report.Summary.Critical, report.Summary.Error, report.Summary.Skipped)
	_, _ = fmt.Fprintf(w, "Duration: %v\n", report.Duration)

	if report.Healthy {
		_, _ = fmt.Fprintf(w, "\nSystem Status: HEALTHY\n")
	} else {
		_, _ = fmt.Fprintf(w, "\nSystem Status: ISSUES DETECTED\n")
	}
}

// ToJSON converts the report to JSON format.
func (r *DiagnosticReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
