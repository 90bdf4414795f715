// SPDX-License-Identifier: MIT

package recorder

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/corvidwatch/livecap/internal/model"
)

// vodProgressPattern matches yt-dlp's VOD/segmented progress line, e.g.:
//
//	[download]  42.0% of 123.45MiB at 1.23MiB/s ETA 00:12
var vodProgressPattern = regexp.MustCompile(`\[download\]\s+([\d.]+)%.*?at\s+(\S+)\s+ETA\s+(\S+)`)

// liveProgressPattern matches yt-dlp's live-stream progress line, e.g.:
//
//	[download]  12.34MiB at 1.50MiB/s
var liveProgressPattern = regexp.MustCompile(`\[download\]\s+([\d.]+)(Ki|Mi|Gi)B\s+at\s+([\d.]+)(Ki|Mi|Gi)B/s`)

var byteMultiplier = map[string]float64{
	"Ki": 1024,
	"Mi": 1024 * 1024,
	"Gi": 1024 * 1024 * 1024,
}

// progressParser turns one capture subprocess's stdout lines into
// model.DownloadProgress snapshots. It tracks the wall-clock instant
// recording began so the live pattern can report a monotonic
// recorded_duration.
type progressParser struct {
	taskID    string
	startedAt time.Time
}

func newProgressParser(taskID string, startedAt time.Time) *progressParser {
	return &progressParser{taskID: taskID, startedAt: startedAt}
}

// parseLine attempts both progress patterns against line, returning the
// resulting snapshot and true on a successful parse, or the zero value and
// false if line matched neither pattern.
func (p *progressParser) parseLine(line string) (model.DownloadProgress, bool) {
	if m := vodProgressPattern.FindStringSubmatch(line); m != nil {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return model.DownloadProgress{}, false
		}
		return model.DownloadProgress{
			TaskID:     p.taskID,
			Status:     model.ProgressDownloading,
			Percentage: pct,
			Speed:      m[2],
			ETA:        m[3],
		}, true
	}

	if m := liveProgressPattern.FindStringSubmatch(line); m != nil {
		size, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return model.DownloadProgress{}, false
		}
		if _, err := strconv.ParseFloat(m[3], 64); err != nil {
			return model.DownloadProgress{}, false
		}
		downloadedBytes := int64(size * byteMultiplier[m[2]])

		return model.DownloadProgress{
			TaskID:           p.taskID,
			Status:           model.ProgressRecording,
			DownloadedBytes:  downloadedBytes,
			IsRecording:      true,
			Bitrate:          m[3] + m[4] + "B/s",
			RecordedDuration: time.Since(p.startedAt).Seconds(),
		}, true
	}

	return model.DownloadProgress{}, false
}

// scanProgress reads r line by line, invoking onProgress for every line
// that parses successfully. It returns when r is exhausted or returns an
// error other than io.EOF. Deliberately never buffers output into a
// growing string: each line is processed and discarded.
func scanProgress(r io.Reader, parser *progressParser, onProgress func(model.DownloadProgress)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		if snap, ok := parser.parseLine(scanner.Text()); ok {
			onProgress(snap)
		}
	}
}
