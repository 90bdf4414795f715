// SPDX-License-Identifier: MIT

// Package events implements the engine's typed, publish-only event bus and
// the notification fan-out layered on top of it.
//
// Every lifecycle signal the engine produces (detector status, trigger
// decisions, download progress, completion/failure) is published here as a
// single tagged-union Event. Publication is best-effort: a full or closed
// bus never blocks or panics the publisher, matching the source's
// "errors inside a detector or recorder task do not propagate to peers"
// design.
package events

import "time"

// Kind identifies the shape of an Event's Payload.
type Kind string

const (
	KindDownloadProgress             Kind = "download-progress"
	KindTwitchPubSubStatus           Kind = "twitch-pubsub-status"
	KindTwitchStreamUp               Kind = "twitch-stream-up"
	KindTwitchStreamDown             Kind = "twitch-stream-down"
	KindYouTubePollingStatus         Kind = "youtube-polling-status"
	KindYouTubeStreamLive            Kind = "youtube-stream-live"
	KindYouTubeChannelError          Kind = "youtube-channel-error"
	KindScheduledDownloadTriggered   Kind = "scheduled-download-triggered"
	KindScheduledDownloadComplete    Kind = "scheduled-download-complete"
	KindScheduledDownloadFailed      Kind = "scheduled-download-failed"
	KindScheduledDownloadQueueUpdate Kind = "scheduled-download-queue-update"
	KindScheduledDownloadDiskFull    Kind = "scheduled-download-disk-full"
	KindNotificationToast            Kind = "scheduled-notification-toast"
)

// Event is one message on the bus: a Kind tag plus a kind-specific payload.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// TwitchPubSubStatusPayload is the payload for KindTwitchPubSubStatus.
type TwitchPubSubStatusPayload struct {
	Connected bool
	Message   string
}

// TwitchStreamPayload is the payload for KindTwitchStreamUp/KindTwitchStreamDown.
type TwitchStreamPayload struct {
	ChannelID   string
	ChannelName string
	Timestamp   time.Time
	Paused      bool
}

// YouTubePollingStatusPayload is the payload for KindYouTubePollingStatus.
type YouTubePollingStatusPayload struct {
	Active        bool
	Message       string
	ChannelsCount int
}

// YouTubeStreamLivePayload is the payload for KindYouTubeStreamLive.
type YouTubeStreamLivePayload struct {
	ChannelID   string
	ChannelName string
	VideoID     string
	Timestamp   time.Time
	Paused      bool
}

// YouTubeChannelErrorPayload is the payload for KindYouTubeChannelError.
type YouTubeChannelErrorPayload struct {
	ChannelID string
	Error     string
}

// ScheduledDownloadPayload is the payload for the scheduled-download-*
// lifecycle events (triggered, complete, failed).
type ScheduledDownloadPayload struct {
	TaskID      string
	ChannelName string
	Platform    string
	FilePath    string
	ErrorMsg    string
}

// ScheduledDownloadQueueUpdatePayload is the payload for
// KindScheduledDownloadQueueUpdate.
type ScheduledDownloadQueueUpdatePayload struct {
	Queue []any // []model.ScheduledTask, kept as any to avoid an import cycle
}

// ScheduledDownloadDiskFullPayload is the payload for
// KindScheduledDownloadDiskFull.
type ScheduledDownloadDiskFullPayload struct {
	ChannelName   string
	FreeBytes     int64
	RequiredBytes int64
}

// NotificationLevel classifies a toast notification's severity.
type NotificationLevel string

const (
	LevelInfo     NotificationLevel = "info"
	LevelWarning  NotificationLevel = "warning"
	LevelCritical NotificationLevel = "critical"
)

// ToastPayload is the payload for KindNotificationToast.
type ToastPayload struct {
	Title string
	Body  string
	Level NotificationLevel
}
