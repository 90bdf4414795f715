// SPDX-License-Identifier: MIT

package model

// ProgressStatus is the fine-grained state published in a DownloadProgress
// snapshot. It is a superset of TaskStatus: it additionally distinguishes
// the recorder-internal states (recording, processing, paused,
// stream_interrupted) that the queue-level TaskStatus collapses into
// "downloading" or a terminal state.
type ProgressStatus string

const (
	ProgressQueued            ProgressStatus = "queued"
	ProgressDownloading       ProgressStatus = "downloading"
	ProgressRecording         ProgressStatus = "recording"
	ProgressProcessing        ProgressStatus = "processing"
	ProgressCompleted         ProgressStatus = "completed"
	ProgressFailed            ProgressStatus = "failed"
	ProgressCancelled         ProgressStatus = "cancelled"
	ProgressPaused            ProgressStatus = "paused"
	ProgressStreamInterrupted ProgressStatus = "stream_interrupted"
)

// DownloadProgress is the published snapshot of one RecordingTask's state,
// emitted on the event bus as a download-progress event on every successful
// stdout parse.
type DownloadProgress struct {
	TaskID          string         `json:"task_id"`
	Status          ProgressStatus `json:"status"`
	Title           string         `json:"title,omitempty"`
	Percentage      float64        `json:"percentage,omitempty"`
	Speed           string         `json:"speed,omitempty"`
	ETA             string         `json:"eta,omitempty"`
	DownloadedBytes int64          `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64          `json:"total_bytes,omitempty"`
	OutputPath      string         `json:"output_path,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`

	// Recording extras, populated only by the live-pattern parser.
	IsRecording      bool    `json:"is_recording,omitempty"`
	RecordedDuration float64 `json:"recorded_duration,omitempty"`
	Bitrate          string  `json:"bitrate,omitempty"`
}
