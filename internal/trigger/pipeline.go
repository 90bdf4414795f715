// SPDX-License-Identifier: MIT

package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corvidwatch/livecap/internal/events"
	"github.com/corvidwatch/livecap/internal/model"
	"github.com/google/uuid"
)

// LiveEvent is what a detector (internal/twitch, internal/youtube) hands the
// pipeline the instant it observes a channel go live. StreamID is what the
// ledger de-duplicates on. The YouTube poller sets it to the video ID, so a
// broadcast seen again on a later cycle carries the same StreamID and only
// the first is admitted. The Twitch detector builds it from the channel ID
// and the event time, so every Twitch stream-up event has a new StreamID and
// a repeated announcement is held back only by the cooldown gate.
type LiveEvent struct {
	Platform    model.Platform
	ChannelID   string
	ChannelName string
	StreamID    string
	StreamURL   string
	Timestamp   time.Time
}

// PresetFinder looks up the enabled preset, if any, watching a given channel
// on a given platform. Implemented by internal/presets.Store.
type PresetFinder interface {
	FindEnabled(platform model.Platform, channelID string) (model.Preset, bool)
	RecordTrigger(presetID string, at time.Time) error
}

// Queue is the subset of internal/queue.Queue the pipeline depends on. Kept
// as a narrow interface here so this package never imports internal/queue
// directly.
type Queue interface {
	Enqueue(task model.ScheduledTask)
	Pump(ctx context.Context)
}

// Config bounds the disk preflight gate and the cooldown gate. The disk
// preflight always checks the matched preset's own output directory.
type Config struct {
	// MinFreeBytes is the amount of free space that must be available at
	// the preset's output directory for a new capture to be admitted.
	MinFreeBytes int64
	// Cooldown is the minimum interval between two admitted triggers for
	// the same channel.
	Cooldown time.Duration
	Logger   *slog.Logger
}

// Pipeline implements the five ordered admission gates that turn a
// detector's LiveEvent into a queued ScheduledTask: pause check, preset
// match, ledger de-duplication, cooldown, and disk preflight. Any gate
// failing short-circuits the rest.
type Pipeline struct {
	cfg      Config
	flags    *model.MonitoringFlags
	presets  PresetFinder
	ledger   *Ledger
	queue    Queue
	notifier *events.Notifier
	bus      *events.Bus
}

// diskFreeOverride defaults to the platform's real checkDiskFree and is
// swapped out in tests that need to exercise the admission/rejection
// boundary without a real filesystem of a known size.
var diskFreeOverride = checkDiskFree

// New builds a Pipeline. flags, presets, queue, and bus must be non-nil;
// notifier may be nil, in which case Trigger skips host notifications.
func New(cfg Config, flags *model.MonitoringFlags, presets PresetFinder, queue Queue, bus *events.Bus, notifier *events.Notifier) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		flags:    flags,
		presets:  presets,
		ledger:   NewLedger(),
		queue:    queue,
		notifier: notifier,
		bus:      bus,
	}
}

// Reason identifies which gate, if any, dropped a LiveEvent.
type Reason string

const (
	ReasonAdmitted      Reason = "admitted"
	ReasonPaused        Reason = "paused"
	ReasonNoPreset      Reason = "no_matching_preset"
	ReasonDuplicate     Reason = "duplicate_stream"
	ReasonCooldown      Reason = "cooldown"
	ReasonDiskPreflight Reason = "disk_preflight_failed"
)

// Trigger runs ev through the admission pipeline. It never returns an error
// for a gate rejecting the event — that is reported via Reason and logged —
// only for a programming/IO failure the caller ought to know about (none of
// the current gates can produce one, so today this always returns nil; the
// signature is kept for callers that want to treat a future failure mode as
// fatal).
func (p *Pipeline) Trigger(ctx context.Context, ev LiveEvent) (Reason, error) {
	now := time.Now()
	log := p.cfg.Logger.With("platform", ev.Platform, "channel_id", ev.ChannelID, "stream_id", ev.StreamID)

	// Gate 1: global pause.
	if p.flags.Paused() {
		log.Debug("trigger dropped: monitoring paused")
		return ReasonPaused, nil
	}

	// Gate 2: preset match.
	preset, ok := p.presets.FindEnabled(ev.Platform, ev.ChannelID)
	if !ok {
		log.Debug("trigger dropped: no enabled preset for channel")
		return ReasonNoPreset, nil
	}

	// Gate 3: ledger de-duplication.
	if p.ledger.Seen(ev.StreamID) {
		log.Debug("trigger dropped: stream already triggered a task")
		return ReasonDuplicate, nil
	}

	// Gate 4: cooldown.
	if remaining := p.ledger.CooldownRemaining(ev.ChannelID, p.cfg.Cooldown, now); remaining > 0 {
		log.Debug("trigger dropped: channel in cooldown", "remaining", remaining)
		return ReasonCooldown, nil
	}

	// Gate 5: disk preflight.
	outputDir := preset.OutputDir
	free, diskOK, skipped, err := diskFreeOverride(outputDir, p.cfg.MinFreeBytes)
	if err != nil {
		log.Warn("disk preflight check failed, admitting by default", "error", err)
	} else if !skipped && !diskOK {
		log.Warn("trigger dropped: insufficient disk space", "free_bytes", free, "required_bytes", p.cfg.MinFreeBytes)
		p.publishDiskFull(ev, preset, free)
		return ReasonDiskPreflight, nil
	}

	// Admitted.
	p.ledger.Record(ev.StreamID, ev.ChannelID, now)

	task := model.ScheduledTask{
		ID:          uuid.NewString(),
		PresetID:    preset.ID,
		ChannelName: ev.ChannelName,
		Platform:    ev.Platform,
		StreamID:    ev.StreamID,
		StreamURL:   ev.StreamURL,
		Status:      model.TaskQueued,
		TriggeredAt: now,
	}
	p.queue.Enqueue(task)

	if err := p.presets.RecordTrigger(preset.ID, now); err != nil {
		log.Warn("failed to record trigger on preset", "error", err)
	}

	if p.bus != nil {
		p.bus.Publish(events.KindScheduledDownloadTriggered, events.ScheduledDownloadPayload{
			TaskID:      task.ID,
			ChannelName: ev.ChannelName,
			Platform:    string(ev.Platform),
		})
	}
	if p.notifier != nil {
		p.notifier.Notify(ctx, events.LevelInfo, ev.ChannelName+" is live", "download started")
	}

	p.queue.Pump(ctx)

	log.Info("trigger admitted", "task_id", task.ID)
	return ReasonAdmitted, nil
}

func (p *Pipeline) publishDiskFull(ev LiveEvent, preset model.Preset, freeBytes int64) {
	if p.bus != nil {
		p.bus.Publish(events.KindScheduledDownloadDiskFull, events.ScheduledDownloadDiskFullPayload{
			ChannelName:   ev.ChannelName,
			FreeBytes:     freeBytes,
			RequiredBytes: p.cfg.MinFreeBytes,
		})
	}
	if p.notifier != nil {
		p.notifier.Notify(context.Background(), events.LevelCritical, fmt.Sprintf("%s: capture skipped", ev.ChannelName), "insufficient disk space")
	}
}
