// SPDX-License-Identifier: MIT

// Package engine wires every detection, admission, queueing, and capture
// component into a single process-wide object and exposes the small set of
// host-facing operations: start/stop monitoring, report status,
// list/cancel/retry scheduled tasks, pause/resume, and force quit.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/corvidwatch/livecap/internal/config"
	"github.com/corvidwatch/livecap/internal/events"
	"github.com/corvidwatch/livecap/internal/health"
	"github.com/corvidwatch/livecap/internal/model"
	"github.com/corvidwatch/livecap/internal/presets"
	"github.com/corvidwatch/livecap/internal/queue"
	"github.com/corvidwatch/livecap/internal/recorder"
	"github.com/corvidwatch/livecap/internal/supervisor"
	"github.com/corvidwatch/livecap/internal/trigger"
	"github.com/corvidwatch/livecap/internal/twitch"
	"github.com/corvidwatch/livecap/internal/youtube"
)

// sinkProxy forwards recorder.TaskSink calls to a *queue.Queue assigned
// after construction, breaking the recorder/queue construction cycle.
type sinkProxy struct {
	target *queue.Queue
}

func (p *sinkProxy) MarkTerminal(ctx context.Context, id string, status model.TaskStatus, filePath string, fileSize int64, errMsg string) {
	p.target.MarkTerminal(ctx, id, status, filePath, fileSize, errMsg)
}

// Engine owns every long-lived component and is the single object cmd/
// livecap-engine constructs and runs. It implements health.StatusProvider so
// the health endpoint can be wired directly against it.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	bus      *events.Bus
	notifier *events.Notifier
	flags    *model.MonitoringFlags

	store      *presets.Store
	queue      *queue.Queue
	recorder   *recorder.Supervisor
	pipeline   *trigger.Pipeline
	twitchDet  *twitch.Detector
	youtubeDet *youtube.Poller
	sup        *supervisor.Supervisor

	started time.Time
}

// New builds an Engine from cfg, loading (or creating) the preset store at
// presetsPath. The returned Engine has not started any service yet — call
// Run to do so.
func New(cfg *config.Config, presetsPath string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := presets.Open(presetsPath)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to open preset store: %w", err)
	}

	bus := events.NewBus()
	flags := &model.MonitoringFlags{}
	notifier := events.NewNotifier(bus, events.HostLevel(cfg.NotificationLevel), logger)

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		notifier: notifier,
		flags:    flags,
		store:    store,
	}

	// The recorder and queue each depend on the other (the recorder reports
	// terminal transitions through TaskSink, which the queue implements; the
	// queue admits work through Recorder, which the recorder implements), so
	// a sinkProxy breaks the construction cycle: it is handed to the
	// recorder now and pointed at the real queue once that exists.
	sink := &sinkProxy{}
	e.recorder = recorder.NewSupervisor(recorder.Config{
		Presets:     store,
		Sink:        sink,
		Bus:         bus,
		Logger:      logger.With("component", "recorder"),
		Binary:      cfg.Recorder.BinaryPath,
		CookieFile:  cfg.Recorder.CookieFile,
		LogDir:      cfg.Recorder.LogDir,
		StopTimeout: cfg.Recorder.StopTimeout,
	})
	e.queue = queue.New(queue.Config{
		MaxConcurrent: cfg.Queue.MaxConcurrentDownloads,
		Logger:        logger.With("component", "queue"),
		Bus:           bus,
	}, e.recorder)
	sink.target = e.queue

	e.pipeline = trigger.New(trigger.Config{
		MinFreeBytes: cfg.Queue.DiskPreflightMB * 1024 * 1024,
		Cooldown:     cfg.Queue.CooldownDuration,
		Logger:       logger.With("component", "trigger"),
	}, flags, store, e.queue, bus, notifier)

	e.twitchDet = twitch.NewDetector(twitch.Config{
		Bus:     bus,
		Flags:   flags,
		Presets: store,
		Trigger: e.pipeline,
		Logger:  logger.With("component", "twitch"),
	})

	e.youtubeDet = youtube.NewPoller(youtube.Config{
		Presets:  store,
		Disabler: store,
		Bus:      bus,
		Flags:    flags,
		Trigger:  e.pipeline,
		Notifier: notifier,
		Logger:   logger.With("component", "youtube"),
		Interval: cfg.YouTube.PollInterval,
		Binary:   cfg.Recorder.BinaryPath,
	})

	e.sup = supervisor.New(supervisor.Config{
		Logger: logger.With("component", "supervisor"),
	})
	if err := e.sup.Add(e.twitchDet); err != nil {
		return nil, fmt.Errorf("engine: failed to register twitch detector: %w", err)
	}
	if err := e.sup.Add(e.youtubeDet); err != nil {
		return nil, fmt.Errorf("engine: failed to register youtube poller: %w", err)
	}

	return e, nil
}

// Run starts the supervision tree and blocks until ctx is cancelled or a
// service fails unrecoverably.
func (e *Engine) Run(ctx context.Context) error {
	e.started = time.Now()
	return e.sup.Run(ctx)
}

// Bus exposes the event bus for callers (e.g. a websocket/UI bridge) that
// need to subscribe to live engine events.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Store exposes the preset store, e.g. for an admin CLI's CRUD commands.
func (e *Engine) Store() *presets.Store { return e.store }

// Pause sets MONITORING_PAUSED, causing the trigger pipeline to silently
// drop every live event until Resume is called.
func (e *Engine) Pause() { e.flags.SetPaused(true) }

// Resume clears MONITORING_PAUSED.
func (e *Engine) Resume() { e.flags.SetPaused(false) }

// Paused reports the current pause state.
func (e *Engine) Paused() bool { return e.flags.Paused() }

// ForceQuit sets FORCE_QUIT, signalling that shutdown should proceed
// immediately rather than waiting on any host minimise-to-tray policy.
func (e *Engine) ForceQuit() { e.flags.SetForceQuit(true) }

// ListTasks returns every tracked scheduled task (queued, in-flight, and
// terminal, for the lifetime of this process).
func (e *Engine) ListTasks() []model.ScheduledTask { return e.queue.List() }

// CancelTask cancels a queued task directly, or a downloading/recording one
// through the recorder supervisor.
func (e *Engine) CancelTask(ctx context.Context, id string) error {
	if err := e.queue.Cancel(id); err == nil {
		return nil
	}
	return e.recorder.Cancel(ctx, id)
}

// StartAdHocDownload enqueues a one-off, non-live download of videoURL,
// reusing presetID's output settings, optionally bounded to the time range
// [startSpec, endSpec) (each in SS, MM:SS, or HH:MM:SS form; an empty spec
// means "no bound on this end"). The video's duration is probed before
// admission so an out-of-range request is rejected here rather than handed
// to the capture binary to fail on.
func (e *Engine) StartAdHocDownload(ctx context.Context, presetID, videoURL, startSpec, endSpec string) (model.ScheduledTask, error) {
	if _, ok := e.store.Preset(presetID); !ok {
		return model.ScheduledTask{}, fmt.Errorf("engine: unknown preset %q", presetID)
	}

	start, end, err := recorder.ParseRange(startSpec, endSpec)
	if err != nil {
		return model.ScheduledTask{}, err
	}

	duration, _ := e.recorder.ProbeDuration(ctx, videoURL)
	if err := recorder.ValidateRange(start, end, duration); err != nil {
		return model.ScheduledTask{}, fmt.Errorf("engine: ad-hoc download range rejected: %w", err)
	}

	task := model.ScheduledTask{
		ID:          uuid.NewString(),
		PresetID:    presetID,
		StreamURL:   videoURL,
		Status:      model.TaskQueued,
		TriggeredAt: time.Now(),
		AdHoc:       true,
		RangeStart:  start,
		RangeEnd:    end,
	}
	e.queue.Enqueue(task)
	e.queue.Pump(ctx)
	return task, nil
}

// RetryTask re-queues a failed or cancelled task under a fresh id.
func (e *Engine) RetryTask(id string) error {
	newID := uuid.NewString()
	return e.queue.Retry(id, newID, func() model.ScheduledTask {
		t, _ := e.queue.Get(id)
		t.TriggeredAt = time.Now()
		t.StartedAt = nil
		t.CompletedAt = nil
		t.ErrorMessage = ""
		return t
	})
}

// PauseCapture stops a specific in-flight capture without discarding the
// task (see internal/recorder.Supervisor.Pause's documented discard-and-
// respawn policy).
func (e *Engine) PauseCapture(id string) error { return e.recorder.Pause(id) }

// ResumeCapture restarts a previously paused capture.
func (e *Engine) ResumeCapture(ctx context.Context, id string) error {
	return e.recorder.Resume(ctx, id)
}

// Services implements health.StatusProvider.
func (e *Engine) Services() []health.ServiceInfo {
	statuses := e.sup.Status()
	out := make([]health.ServiceInfo, 0, len(statuses)+1)
	for _, s := range statuses {
		out = append(out, health.ServiceInfo{
			Name:     s.Name,
			State:    s.State.String(),
			Uptime:   s.Uptime,
			Healthy:  s.State == supervisor.ServiceStateRunning,
			Restarts: s.Restarts,
		})
	}
	out = append(out, health.ServiceInfo{
		Name:    "recorder",
		State:   fmt.Sprintf("%d active", e.recorder.ActiveCount()),
		Healthy: true,
	})
	return out
}
