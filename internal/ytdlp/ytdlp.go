// SPDX-License-Identifier: MIT

// Package ytdlp locates the capture binary, probes its version and
// capabilities, and checks GitHub for newer releases, distinguishing
// "missing dependency" from "outdated binary" failures.
package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/corvidwatch/livecap/internal/updater"
)

// ErrNotFound is returned by Locate when the binary cannot be resolved on
// PATH or at the configured path.
var ErrNotFound = errors.New("ytdlp: capture binary not found")

// Locate resolves path to an absolute, executable location: if path is
// already absolute it is checked directly, otherwise it is resolved via
// exec.LookPath (PATH search), matching how internal/recorder hands the
// same string straight to exec.CommandContext.
func Locate(path string) (string, error) {
	if path == "" {
		path = "yt-dlp"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s (%v)", ErrNotFound, path, err)
	}
	return resolved, nil
}

// Version runs "<binary> --version" and returns its trimmed stdout.
func Version(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "--version").Output() // #nosec G204 -- binary is host-configured, not user input
	if err != nil {
		return "", fmt.Errorf("ytdlp: failed to run --version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CheckForUpdate compares currentVersion against yt-dlp's latest GitHub
// release, reusing internal/updater's release-fetching client pointed at
// the yt-dlp/yt-dlp repository instead of this project's own releases.
func CheckForUpdate(ctx context.Context, currentVersion string) (*updater.UpdateInfo, error) {
	u := updater.New(
		updater.WithOwner("yt-dlp"),
		updater.WithRepo("yt-dlp"),
		updater.WithCurrentVersion(currentVersion),
	)
	return u.CheckForUpdates(ctx)
}

// SelfUpdate invokes yt-dlp's own built-in updater (-U), which yt-dlp
// ships with precisely because it is a frequently-patched scraper binary;
// unlike internal/updater's GitHub-tarball replace, there is no benefit to
// reimplementing that logic here.
func SelfUpdate(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "-U").CombinedOutput() // #nosec G204 -- binary is host-configured, not user input
	if err != nil {
		return string(out), fmt.Errorf("ytdlp: self-update failed: %w", err)
	}
	return string(out), nil
}

// SupportsLiveFromStart probes whether binary's --help text advertises
// --live-from-start, the flag every live capture depends on.
// Older yt-dlp builds predate the flag; this lets the recorder fail fast
// with a clear "outdated binary" error instead of yt-dlp's own unhelpful
// "unrecognized argument" message surfacing from deep inside a spawned
// subprocess.
func SupportsLiveFromStart(ctx context.Context, binary string) (bool, error) {
	return helpContains(ctx, binary, "--live-from-start")
}

// SupportsDownloadSections probes whether binary's --help text advertises
// --download-sections, required for ad-hoc time-range captures.
func SupportsDownloadSections(ctx context.Context, binary string) (bool, error) {
	return helpContains(ctx, binary, "--download-sections")
}

func helpContains(ctx context.Context, binary, flag string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "--help").Output() // #nosec G204 -- binary is host-configured, not user input
	if err != nil {
		return false, fmt.Errorf("ytdlp: failed to run --help: %w", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), flag) {
			return true, nil
		}
	}
	return false, nil
}
