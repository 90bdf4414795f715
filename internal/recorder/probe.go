// SPDX-License-Identifier: MIT

package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"
)

const durationProbeTimeout = 30 * time.Second

// durationProbeResult is the subset of yt-dlp's --dump-json output the
// ad-hoc download range validator reads.
type durationProbeResult struct {
	Duration float64 `json:"duration"`
}

// DurationProbeFunc probes a video URL for its total duration in seconds.
// Exposed as a type so Supervisor can be tested without shelling out to a
// real binary, mirroring internal/youtube.ProbeFunc.
type DurationProbeFunc func(ctx context.Context, binary, videoURL string) (seconds int, ok bool)

// probeDuration shells out to `<binary> --dump-json --no-warnings <url>`
// with a bounded timeout and reads the decoded duration field. A livestream
// or any video yt-dlp reports with no positive duration yields ok=false.
func probeDuration(ctx context.Context, binary, videoURL string) (int, bool) {
	ctx, cancel := context.WithTimeout(ctx, durationProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "--dump-json", "--no-warnings", videoURL)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return 0, false
	}

	var result durationProbeResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil || result.Duration <= 0 {
		return 0, false
	}
	return int(result.Duration), true
}
