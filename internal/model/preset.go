// SPDX-License-Identifier: MIT

// Package model holds the data types shared across the detection, trigger,
// queue, and recorder layers: Preset, ScheduledTask, RecordingTask,
// DownloadProgress, and the process-wide monitoring flags.
package model

import "time"

// Platform identifies which streaming service a Preset or ScheduledTask
// belongs to.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
)

// Quality is the requested capture resolution, mapped to a yt-dlp format
// selector by the recorder (see internal/recorder/command.go).
type Quality string

const (
	QualityBest Quality = "best"
	Quality1080 Quality = "1080p"
	Quality720  Quality = "720p"
	Quality480  Quality = "480p"
	Quality360  Quality = "360p"
)

// ContentType selects whether a capture keeps video or audio-only.
type ContentType string

const (
	ContentVideoAudio ContentType = "video+audio"
	ContentAudioOnly  ContentType = "audio_only"
)

// ContainerFormat selects the remux container, or "auto" to keep whatever
// the capture binary produces natively.
type ContainerFormat string

const (
	ContainerAuto ContainerFormat = "auto"
	ContainerMP4  ContainerFormat = "mp4"
	ContainerMKV  ContainerFormat = "mkv"
)

// Preset is a user-configured monitoring entry for one channel on one
// platform. It is immutable during a capture and is only ever updated by
// the host (or, for the enabled flag, by a detector's auto-disable path on
// an invalid-channel error).
//
// Invariant: Preset.ID is unique across the whole preset set; presets with
// Enabled == false are ignored by both detectors and the trigger pipeline.
type Preset struct {
	ID               string          `json:"id"`
	ChannelID        string          `json:"channel_id"`
	ChannelName      string          `json:"channel_name"`
	Platform         Platform        `json:"platform"`
	Enabled          bool            `json:"enabled"`
	Quality          Quality         `json:"quality"`
	ContentType      ContentType     `json:"content_type"`
	OutputDir        string          `json:"output_dir"`
	FilenameTemplate string          `json:"filename_template"`
	ContainerFormat  ContainerFormat `json:"container_format"`
	CreatedAt        time.Time       `json:"created_at"`
	LastTriggeredAt  *time.Time      `json:"last_triggered_at,omitempty"`
	TriggerCount     uint32          `json:"trigger_count"`
}

// Clone returns a deep-enough copy of p suitable for snapshot-copy reads:
// callers may freely mutate the result without affecting the stored preset.
func (p Preset) Clone() Preset {
	if p.LastTriggeredAt != nil {
		t := *p.LastTriggeredAt
		p.LastTriggeredAt = &t
	}
	return p
}

// DefaultFilenameTemplate is used when a Preset does not specify one.
const DefaultFilenameTemplate = "{channel_name}_{datetime}_{type}"

// Ext returns the file extension a recording of this preset should use,
// mp4/mkv if ContainerFormat names one, otherwise "ts".
func (p Preset) Ext() string {
	switch p.ContainerFormat {
	case ContainerMP4:
		return "mp4"
	case ContainerMKV:
		return "mkv"
	default:
		return "ts"
	}
}
