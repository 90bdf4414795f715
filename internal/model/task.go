// SPDX-License-Identifier: MIT

package model

import "time"

// TaskStatus is the lifecycle state of a ScheduledTask.
type TaskStatus string

const (
	TaskQueued      TaskStatus = "queued"
	TaskDownloading TaskStatus = "downloading"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskCancelled   TaskStatus = "cancelled"
)

// Terminal reports whether s is one of the states a ScheduledTask cannot
// leave.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// ScheduledTask is the capture queue's element: a unit of admitted or
// pending work produced by the trigger pipeline (internal/trigger) and
// consumed by the capture queue (internal/queue) and recorder supervisor
// (internal/recorder).
//
// Lifecycle: created in TaskQueued by the trigger pipeline; transitions to
// TaskDownloading when admitted by the queue pump; terminal states are
// TaskCompleted, TaskFailed, TaskCancelled. Terminal tasks are retained in
// memory for the session; on-disk history is out of scope.
type ScheduledTask struct {
	ID              string     `json:"id"`
	PresetID        string     `json:"preset_id"`
	ChannelName     string     `json:"channel_name"`
	Platform        Platform   `json:"platform"`
	StreamID        string     `json:"stream_id"`
	StreamURL       string     `json:"stream_url"`
	Status          TaskStatus `json:"status"`
	TriggeredAt     time.Time  `json:"triggered_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FilePath        string     `json:"file_path,omitempty"`
	FileSize        int64      `json:"file_size,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	DownloadTaskID  string     `json:"download_task_id,omitempty"`

	// AdHoc marks a one-off, non-live download of a specific video URL
	// (as opposed to the normal live-trigger path from a watched channel).
	// The recorder supervisor uses it to decide IsLive on the
	// DownloadConfig it builds for this task.
	AdHoc bool `json:"ad_hoc,omitempty"`
	// RangeStart/RangeEnd bound an AdHoc task to a portion of the source
	// video, in seconds. Both zero means the whole video. Ignored when
	// AdHoc is false.
	RangeStart int `json:"range_start,omitempty"`
	RangeEnd   int `json:"range_end,omitempty"`
}

// Clone returns an independent copy of t safe to hand out of a lock.
func (t ScheduledTask) Clone() ScheduledTask {
	if t.StartedAt != nil {
		s := *t.StartedAt
		t.StartedAt = &s
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

// RecordingTask is the recorder supervisor's own bookkeeping record for one
// in-flight or terminal capture. It is identified by its own id (distinct
// from the originating ScheduledTask.ID.
//
// Ownership: the recorder supervisor exclusively owns the child-process
// handle referenced indirectly here; no other component may read or signal
// it directly (see internal/recorder for the process handle itself — it is
// deliberately not part of this package, which holds only the
// platform-neutral data model).
type RecordingTask struct {
	ID              string
	ScheduledTaskID string
	Config          DownloadConfig
	Progress        DownloadProgress
	Paused          bool
}

// DownloadConfig is the fully-resolved set of parameters the recorder
// supervisor needs to spawn a capture subprocess for one task. It is derived
// once from a Preset plus the triggering live event and does not change for
// the life of the RecordingTask (pause/resume respawns with the same
// config).
type DownloadConfig struct {
	TaskID           string
	StreamURL        string
	ChannelName      string
	Platform         Platform
	Quality          Quality
	ContentType      ContentType
	OutputDir        string
	FilenameTemplate string
	ContainerFormat  ContainerFormat
	Title            string
	CookieFile       string

	// IsLive distinguishes a live capture (uses --live-from-start) from an
	// ad-hoc VOD download with an optional time range.
	IsLive bool

	// RangeStart/RangeEnd are ad-hoc download section bounds in seconds;
	// both zero means "no range".
	RangeStart int
	RangeEnd   int
}
