// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidwatch/livecap/internal/events"
	"github.com/corvidwatch/livecap/internal/model"
	"github.com/corvidwatch/livecap/internal/util"
)

// DefaultStopTimeout bounds how long a graceful stop waits before a hard
// kill, the same default stream.Manager uses.
const DefaultStopTimeout = 5 * time.Second

// PresetResolver looks a preset up by id, letting the supervisor rebuild
// the DownloadConfig a ScheduledTask only references by PresetID.
type PresetResolver interface {
	Preset(id string) (model.Preset, bool)
}

// TaskSink receives terminal transitions reported by the supervisor. The
// capture queue implements this (internal/queue.Queue.MarkTerminal).
type TaskSink interface {
	MarkTerminal(ctx context.Context, id string, status model.TaskStatus, filePath string, fileSize int64, errMsg string)
}

// Config configures a Supervisor.
type Config struct {
	Presets PresetResolver
	Sink    TaskSink
	Bus     *events.Bus
	Logger  *slog.Logger

	// Binary is the capture executable (default "yt-dlp").
	Binary string
	// CookieFile, when set, is passed to YouTube captures via --cookies.
	CookieFile string
	// LogDir, when set, captures each task's subprocess stderr to a
	// rotating log file under this directory.
	LogDir string
	// StopTimeout bounds graceful SIGTERM shutdown before a hard kill.
	StopTimeout time.Duration
	// DurationProbe overrides the ad-hoc download duration probe for tests.
	DurationProbe DurationProbeFunc
}

// recording is the supervisor's bookkeeping for one in-flight or terminal
// capture, mirroring model.RecordingTask but additionally holding the live
// process handle, which must never be exposed outside this package.
type recording struct {
	mu sync.Mutex

	recordingID string // fabricated recorder-owned id, distinct from task.ID
	task        model.ScheduledTask
	cfg         model.DownloadConfig
	outputPath  string

	cmd       *exec.Cmd
	paused    bool
	cancel    context.CancelFunc
	logFile   *RotatingWriter
	stderrBuf *strings.Builder
}

// Supervisor spawns and supervises capture subprocesses for admitted
// ScheduledTasks. It implements internal/queue.Recorder.
type Supervisor struct {
	cfg Config

	mu         sync.Mutex
	recordings map[string]*recording // keyed by ScheduledTask.ID

	// tracker records each spawned capture subprocess by task ID so a test
	// (or an operator diagnostic) can confirm every process a Start call
	// spawned was reaped by supervise, instead of just trusting it was.
	tracker *util.ResourceTracker
}

// NewSupervisor builds a Supervisor, applying defaults for Binary,
// StopTimeout, and Logger where unset.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DurationProbe == nil {
		cfg.DurationProbe = probeDuration
	}
	return &Supervisor{cfg: cfg, recordings: make(map[string]*recording), tracker: util.NewResourceTracker()}
}

// ProbeDuration reports the total duration, in seconds, of the video at
// videoURL, for validating an ad-hoc download's requested range before
// admission. ok is false if the duration could not be determined, in which
// case ValidateRange skips the range-vs-duration check.
func (s *Supervisor) ProbeDuration(ctx context.Context, videoURL string) (seconds int, ok bool) {
	return s.cfg.DurationProbe(ctx, s.cfg.Binary, videoURL)
}

// LeakedProcesses reports the task IDs of every spawned capture subprocess
// that has not yet been reaped by supervise. Non-empty after Run returns
// would indicate a process supervise lost track of.
func (s *Supervisor) LeakedProcesses() []string {
	return s.tracker.LeakedResources()
}

// ActiveCount reports how many tasks are currently counted toward
// max_concurrent_downloads: those in downloading, recording, or processing.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.recordings {
		rec.mu.Lock()
		if !rec.paused {
			n++
		}
		rec.mu.Unlock()
	}
	return n
}

// Start spawns the capture subprocess for task and returns once the
// subprocess is either running or has failed to spawn; it does not wait
// for the capture to finish. Terminal transitions are reported
// asynchronously to cfg.Sink.
func (s *Supervisor) Start(ctx context.Context, task model.ScheduledTask) error {
	preset, ok := s.cfg.Presets.Preset(task.PresetID)
	if !ok {
		return fmt.Errorf("recorder: unknown preset %q for task %q", task.PresetID, task.ID)
	}

	recordingID := uuid.NewString()
	downloadCfg := model.DownloadConfig{
		TaskID:           recordingID,
		StreamURL:        task.StreamURL,
		ChannelName:      task.ChannelName,
		Platform:         task.Platform,
		Quality:          preset.Quality,
		ContentType:      preset.ContentType,
		OutputDir:        preset.OutputDir,
		FilenameTemplate: preset.FilenameTemplate,
		ContainerFormat:  preset.ContainerFormat,
		CookieFile:       s.cfg.CookieFile,
		IsLive:           !task.AdHoc,
		RangeStart:       task.RangeStart,
		RangeEnd:         task.RangeEnd,
	}

	rec := &recording{recordingID: recordingID, task: task, cfg: downloadCfg}

	s.mu.Lock()
	s.recordings[task.ID] = rec
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	rec.mu.Lock()
	rec.cancel = cancel
	rec.mu.Unlock()

	if err := s.spawn(runCtx, rec); err != nil {
		s.mu.Lock()
		delete(s.recordings, task.ID)
		s.mu.Unlock()
		cancel()
		return err
	}

	util.SafeGo("recorder-supervise", nil, func() {
		s.supervise(runCtx, rec)
	}, func(r interface{}, stack []byte) {
		s.cfg.Logger.Error("panic supervising capture process", "task_id", task.ID, "recover", r, "stack", string(stack))
	})
	return nil
}

// spawn builds and starts the capture subprocess, wiring stdout to the
// progress parser and, if configured, stderr to a rotating log file. It
// assigns rec.cmd only after Start succeeds, so a concurrent cancel/stop
// never signals a process that never started.
func (s *Supervisor) spawn(ctx context.Context, rec *recording) error {
	path := outputPath(rec.cfg, time.Now())
	rec.mu.Lock()
	rec.outputPath = path
	rec.mu.Unlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("recorder: failed to create output directory: %w", err)
		}
	}

	cmd := buildCommand(ctx, s.cfg.Binary, rec.cfg, path)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("recorder: failed to open stdout pipe: %w", err)
	}

	stderrBuf := &strings.Builder{}
	var stderrWriter io.Writer = stderrBuf
	if s.cfg.LogDir != "" {
		lw, lerr := CaptureLogWriter(s.cfg.LogDir, rec.recordingID)
		if lerr == nil {
			if rw, ok := lw.(*RotatingWriter); ok {
				rec.mu.Lock()
				rec.logFile = rw
				rec.mu.Unlock()
				stderrWriter = io.MultiWriter(stderrBuf, rw)
			}
		}
	}
	cmd.Stderr = stderrWriter

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("recorder: failed to start capture subprocess: %w", err)
	}
	s.tracker.TrackProcess(rec.task.ID, cmd.Process)

	rec.mu.Lock()
	rec.cmd = cmd
	rec.stderrBuf = stderrBuf
	rec.mu.Unlock()

	parser := newProgressParser(rec.recordingID, time.Now())
	util.SafeGo("recorder-scan-progress", nil, func() {
		scanProgress(stdout, parser, func(p model.DownloadProgress) {
			p.OutputPath = path
			if s.cfg.Bus != nil {
				s.cfg.Bus.Publish(events.KindDownloadProgress, p)
			}
		})
	}, func(r interface{}, stack []byte) {
		s.cfg.Logger.Error("panic scanning capture progress", "task_id", rec.task.ID, "recover", r, "stack", string(stack))
	})

	return nil
}

// supervise waits for the capture subprocess to exit and drives the
// terminal transition: completed, failed, or stream_interrupted.
func (s *Supervisor) supervise(ctx context.Context, rec *recording) {
	rec.mu.Lock()
	cmd := rec.cmd
	path := rec.outputPath
	rec.mu.Unlock()

	waitErr := cmd.Wait()
	s.tracker.UntrackProcess(rec.task.ID)

	rec.mu.Lock()
	stderrText := ""
	if rec.stderrBuf != nil {
		stderrText = rec.stderrBuf.String()
	}
	logFile := rec.logFile
	rec.mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}

	s.mu.Lock()
	current, tracked := s.recordings[rec.task.ID]
	tracked = tracked && current == rec
	rec.mu.Lock()
	paused := rec.paused
	rec.mu.Unlock()
	if tracked && !paused {
		delete(s.recordings, rec.task.ID)
	}
	s.mu.Unlock()

	// Cancel has already removed the recording and reported it cancelled;
	// a paused recording stays registered so Resume can respawn it.
	if !tracked || paused {
		return
	}

	log := s.cfg.Logger.With("task_id", rec.task.ID, "recording_id", rec.recordingID)

	switch {
	case waitErr == nil:
		s.finish(ctx, rec, path, log)
	case looksLikeStreamInterruption(stderrText):
		s.interrupt(ctx, rec, path, log)
	default:
		s.fail(ctx, rec, waitErr, log)
	}
}

// finish handles a clean (exit 0) subprocess exit: the [processing] step is
// merely a filesystem check, never a fabricated success.
func (s *Supervisor) finish(ctx context.Context, rec *recording, path string, log *slog.Logger) {
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.KindDownloadProgress, model.DownloadProgress{TaskID: rec.recordingID, Status: model.ProgressProcessing, OutputPath: path})
	}

	info, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = info.Size()
	} else {
		log.Warn("capture exited cleanly but output file is missing", "path", path)
	}

	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.KindScheduledDownloadComplete, events.ScheduledDownloadPayload{
			TaskID: rec.task.ID, ChannelName: rec.task.ChannelName, Platform: string(rec.task.Platform), FilePath: path,
		})
	}
	s.cfg.Sink.MarkTerminal(ctx, rec.task.ID, model.TaskCompleted, path, size, "")
}

// interrupt handles a non-zero exit whose stderr indicates the live source
// ended or dropped the connection: the partial file is preserved and
// reported as a distinct outcome from failed. The
// ScheduledTask still transitions through TaskCompleted (the model package
// has no dedicated terminal status for stream_interrupted); the finer
// distinction is carried on the download-progress event's ProgressStatus.
func (s *Supervisor) interrupt(ctx context.Context, rec *recording, path string, log *slog.Logger) {
	info, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	log.Info("capture ended with stream interruption, preserving partial file", "path", path)

	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.KindDownloadProgress, model.DownloadProgress{TaskID: rec.recordingID, Status: model.ProgressStreamInterrupted, OutputPath: path})
	}
	s.cfg.Sink.MarkTerminal(ctx, rec.task.ID, model.TaskCompleted, path, size, "")
}

// fail handles a spawn/exit failure with no stream-interruption marker.
func (s *Supervisor) fail(ctx context.Context, rec *recording, waitErr error, log *slog.Logger) {
	log.Error("capture subprocess failed", "error", waitErr)

	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.KindDownloadProgress, model.DownloadProgress{TaskID: rec.recordingID, Status: model.ProgressFailed, ErrorMessage: waitErr.Error()})
		s.cfg.Bus.Publish(events.KindScheduledDownloadFailed, events.ScheduledDownloadPayload{
			TaskID: rec.task.ID, ChannelName: rec.task.ChannelName, Platform: string(rec.task.Platform), ErrorMsg: waitErr.Error(),
		})
	}
	s.cfg.Sink.MarkTerminal(ctx, rec.task.ID, model.TaskFailed, "", 0, waitErr.Error())
}

// looksLikeStreamInterruption applies a heuristic that is inherently
// locale/version-dependent: a substring match on known yt-dlp live-source
// markers.
func looksLikeStreamInterruption(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range []string{"stream ended", "connection", "interrupt"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Cancel kills the task's subprocess and marks it cancelled. A cancelled
// capture's partial output, if any, is discarded from the task record (no
// file_path/file_size) since cancellation is an operator-initiated abort,
// not a partial success.
func (s *Supervisor) Cancel(ctx context.Context, taskID string) error {
	rec, ok := s.take(taskID)
	if !ok {
		return fmt.Errorf("recorder: no active recording for task %q", taskID)
	}

	s.killNow(rec)

	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.KindDownloadProgress, model.DownloadProgress{TaskID: rec.recordingID, Status: model.ProgressCancelled})
	}
	s.cfg.Sink.MarkTerminal(ctx, taskID, model.TaskCancelled, "", 0, "")
	return nil
}

// StopGraceful sends SIGTERM (POSIX) so the capture binary can finalise its
// container, falling back to a hard kill on platforms with no signal
// support or if the process has not exited within StopTimeout.
func (s *Supervisor) StopGraceful(taskID string) error {
	rec, ok := s.get(taskID)
	if !ok {
		return fmt.Errorf("recorder: no active recording for task %q", taskID)
	}
	s.gracefulStop(rec)
	return nil
}

// Pause kills the child and remembers its config so Resume can respawn it.
// No byte-level resume is attempted: live sources do not support it, so this
// supervisor discards partial bytes and restarts the capture from scratch.
func (s *Supervisor) Pause(taskID string) error {
	rec, ok := s.get(taskID)
	if !ok {
		return fmt.Errorf("recorder: no active recording for task %q", taskID)
	}
	rec.mu.Lock()
	rec.paused = true
	rec.mu.Unlock()

	s.killNow(rec)

	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.KindDownloadProgress, model.DownloadProgress{TaskID: rec.recordingID, Status: model.ProgressPaused})
	}
	return nil
}

// Resume respawns a paused task with its original DownloadConfig.
func (s *Supervisor) Resume(ctx context.Context, taskID string) error {
	s.mu.Lock()
	rec, ok := s.recordings[taskID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("recorder: no recording for task %q", taskID)
	}

	rec.mu.Lock()
	wasPaused := rec.paused
	rec.paused = false
	rec.mu.Unlock()
	if !wasPaused {
		return fmt.Errorf("recorder: task %q is not paused", taskID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rec.mu.Lock()
	rec.cancel = cancel
	rec.mu.Unlock()

	if err := s.spawn(runCtx, rec); err != nil {
		cancel()
		return err
	}
	util.SafeGo("recorder-supervise", nil, func() {
		s.supervise(runCtx, rec)
	}, func(r interface{}, stack []byte) {
		s.cfg.Logger.Error("panic supervising capture process", "task_id", taskID, "recover", r, "stack", string(stack))
	})
	return nil
}

func (s *Supervisor) take(taskID string) (*recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[taskID]
	if ok {
		delete(s.recordings, taskID)
	}
	return rec, ok
}

func (s *Supervisor) get(taskID string) (*recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[taskID]
	return rec, ok
}

// killNow sends an immediate kill signal and cancels the capture's context.
func (s *Supervisor) killNow(rec *recording) {
	rec.mu.Lock()
	cmd := rec.cmd
	cancel := rec.cancel
	rec.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if cancel != nil {
		cancel()
	}
}

// gracefulStop sends SIGTERM and force-kills after cfg.StopTimeout if the
// process has not exited by then (a hard kill straight away where
// sendTerminate fails).
func (s *Supervisor) gracefulStop(rec *recording) {
	rec.mu.Lock()
	cmd := rec.cmd
	rec.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	proc := cmd.Process

	if err := sendTerminate(proc); err != nil {
		_ = proc.Kill()
		return
	}

	timer := time.AfterFunc(s.cfg.StopTimeout, func() {
		_ = proc.Kill()
	})
	util.SafeGo("recorder-graceful-stop-wait", nil, func() {
		_, _ = proc.Wait()
		timer.Stop()
	}, func(r interface{}, stack []byte) {
		s.cfg.Logger.Error("panic waiting for stopped capture process", "recover", r, "stack", string(stack))
	})
}
