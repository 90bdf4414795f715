// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/corvidwatch/livecap/internal/model"
)

// formatSelector maps a Preset's quality/content_type pair to a yt-dlp
// format selector string.
func formatSelector(quality model.Quality, contentType model.ContentType) string {
	if contentType == model.ContentAudioOnly {
		return "bestaudio"
	}
	switch quality {
	case model.Quality1080:
		return "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	case model.Quality720:
		return "bestvideo[height<=720]+bestaudio/best[height<=720]"
	case model.Quality480:
		return "bestvideo[height<=480]+bestaudio/best[height<=480]"
	case model.Quality360:
		return "bestvideo[height<=360]+bestaudio/best[height<=360]"
	default:
		return "bestvideo+bestaudio/best"
	}
}

// expandFilename substitutes the placeholders {channel_name} {date}
// {datetime} {type} {title} in template with values derived from cfg and
// now. A blank title falls back to "{channel_name}_direct_stream", matching
// scheduled (non-interactive) recordings that have no video title to draw
// on.
func expandFilename(template string, cfg model.DownloadConfig, now time.Time) string {
	title := cfg.Title
	if title == "" {
		title = cfg.ChannelName + "_direct_stream"
	}

	contentType := string(cfg.ContentType)

	replacer := strings.NewReplacer(
		"{channel_name}", cfg.ChannelName,
		"{date}", now.Format("20060102"),
		"{datetime}", now.Format("20060102_150405"),
		"{type}", contentType,
		"{title}", title,
	)
	return replacer.Replace(template)
}

// parseTimeSpec parses a time specification in SS, MM:SS, or HH:MM:SS form
// into a whole number of seconds.
func parseTimeSpec(spec string) (int, error) {
	parts := strings.Split(spec, ":")
	var h, m, s int
	var err error

	switch len(parts) {
	case 1:
		s, err = strconv.Atoi(parts[0])
	case 2:
		m, err = strconv.Atoi(parts[0])
		if err == nil {
			s, err = strconv.Atoi(parts[1])
		}
	case 3:
		h, err = strconv.Atoi(parts[0])
		if err == nil {
			m, err = strconv.Atoi(parts[1])
		}
		if err == nil {
			s, err = strconv.Atoi(parts[2])
		}
	default:
		return 0, fmt.Errorf("invalid time spec %q", spec)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid time spec %q: %w", spec, err)
	}
	return h*3600 + m*60 + s, nil
}

// ParseRange parses an ad-hoc download's optional start/end time range.
// Either spec may be empty, meaning 0; passing both empty means "no range"
// and ValidateRange will accept it unconditionally. Each non-empty spec
// accepts SS, MM:SS, or HH:MM:SS form, per parseTimeSpec.
func ParseRange(startSpec, endSpec string) (start, end int, err error) {
	if startSpec != "" {
		start, err = parseTimeSpec(startSpec)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range start %q: %w", startSpec, err)
		}
	}
	if endSpec != "" {
		end, err = parseTimeSpec(endSpec)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range end %q: %w", endSpec, err)
		}
	}
	return start, end, nil
}

// ValidateRange enforces an ad-hoc download's admission-time boundary
// rules: a range with end <= start is rejected, and a range exceeding the
// video's known duration is rejected. start == end == 0 means no range was
// requested and is always accepted. durationSeconds <= 0 means the
// duration could not be probed, so the exceeds-duration check is skipped
// rather than rejecting on missing information.
func ValidateRange(start, end, durationSeconds int) error {
	if start == 0 && end == 0 {
		return nil
	}
	if end <= start {
		return fmt.Errorf("range end (%ds) must be after range start (%ds)", end, start)
	}
	if durationSeconds > 0 && end > durationSeconds {
		return fmt.Errorf("range end (%ds) exceeds video duration (%ds)", end, durationSeconds)
	}
	return nil
}

// normalizeHHMMSS renders a count of seconds as canonical HH:MM:SS.
func normalizeHHMMSS(totalSeconds int) string {
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// buildCommand constructs the capture subprocess invocation for cfg.
//
// Flag order: line-buffered progress, progress mode, format
// selector, output template, --live-from-start for live captures, a
// YouTube cookie file when configured, container remux when not "auto",
// and finally the stream URL.
func buildCommand(ctx context.Context, binary string, cfg model.DownloadConfig, outputPath string) *exec.Cmd {
	args := []string{"--newline", "--progress", "-f", formatSelector(cfg.Quality, cfg.ContentType), "-o", outputPath}

	if cfg.IsLive {
		args = append(args, "--live-from-start")
	}
	if cfg.Platform == model.PlatformYouTube && cfg.CookieFile != "" {
		args = append(args, "--cookies", cfg.CookieFile)
	}
	if cfg.ContainerFormat != model.ContainerAuto && cfg.ContainerFormat != "" {
		args = append(args, "--remux-video", string(cfg.ContainerFormat))
	}
	if !cfg.IsLive && cfg.RangeEnd > cfg.RangeStart && cfg.RangeStart >= 0 {
		section := fmt.Sprintf("*%s-%s", normalizeHHMMSS(cfg.RangeStart), normalizeHHMMSS(cfg.RangeEnd))
		args = append(args, "--download-sections", section)
	}

	args = append(args, cfg.StreamURL)

	return exec.CommandContext(ctx, binary, args...)
}

// containerExt returns the file extension a capture under cfg should use:
// mp4/mkv if ContainerFormat names one, otherwise "ts".
func containerExt(cfg model.DownloadConfig) string {
	switch cfg.ContainerFormat {
	case model.ContainerMP4:
		return "mp4"
	case model.ContainerMKV:
		return "mkv"
	default:
		return "ts"
	}
}

// outputPath joins a preset's output_dir with its expanded filename and the
// extension implied by container_format.
func outputPath(cfg model.DownloadConfig, now time.Time) string {
	name := expandFilename(cfg.FilenameTemplate, cfg, now)
	return filepath.Join(cfg.OutputDir, name+"."+containerExt(cfg))
}
