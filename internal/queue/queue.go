// SPDX-License-Identifier: MIT

// Package queue implements the capture queue: a FIFO of model.ScheduledTask
// with a concurrency cap, admitted into the recorder supervisor by an
// idempotent pump. See internal/trigger for what appends to it and
// internal/recorder for what consumes it.
package queue

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corvidwatch/livecap/internal/events"
	"github.com/corvidwatch/livecap/internal/model"
)

// Recorder is the subset of the recorder supervisor the pump depends on:
// handing a queued task off to start an actual capture. Implemented by
// internal/recorder.Supervisor.
type Recorder interface {
	// Start begins capturing task. It must return quickly (spawn only);
	// the recorder reports terminal transitions asynchronously via its
	// own event publication, not through this call's return value.
	Start(ctx context.Context, task model.ScheduledTask) error
	// ActiveCount reports how many tasks the recorder currently has in a
	// counted-toward-the-cap status (downloading | recording |
	// processing), across both scheduled and ad-hoc tasks.
	ActiveCount() int
}

// Config bounds the queue's concurrency.
type Config struct {
	// MaxConcurrent is the host's max_concurrent_downloads setting.
	MaxConcurrent int
	Logger        *slog.Logger
	// Bus receives a scheduled-download-queue-update event once per Pump
	// call, reflecting the queue snapshot after admission settles. Optional.
	Bus *events.Bus
}

// Queue is a strict-insertion-order FIFO of ScheduledTasks, admitted into
// the recorder as capacity allows. Mirrors the
// snapshot-under-lock-then-act-outside-it discipline internal/supervisor's
// Supervisor uses for its services map: Enqueue/Cancel/Retry mutate state
// under mu, but Pump releases the lock before calling into the recorder so a
// slow or blocking Start never holds the queue lock.
type Queue struct {
	cfg Config
	mu  sync.Mutex

	// order holds task IDs in FIFO order; tasks holds the current record
	// for each ID. A *list.List keeps O(1) removal for cancel/retry
	// without an O(n) index-shift in a plain slice.
	order *list.List
	index map[string]*list.Element
	tasks map[string]model.ScheduledTask

	recorder Recorder
	pumping  bool
}

// New creates an empty Queue bound to recorder.
func New(cfg Config, recorder Recorder) *Queue {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Queue{
		cfg:      cfg,
		order:    list.New(),
		index:    make(map[string]*list.Element),
		tasks:    make(map[string]model.ScheduledTask),
		recorder: recorder,
	}
}

// Enqueue appends task in TaskQueued status. Enqueue does not itself admit
// the task into the recorder; call Pump (or rely on the trigger pipeline's
// own Pump invocation) to do so.
func (q *Queue) Enqueue(task model.ScheduledTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task.Status = model.TaskQueued
	el := q.order.PushBack(task.ID)
	q.index[task.ID] = el
	q.tasks[task.ID] = task
}

// Get returns a copy of the task with the given id, if tracked.
func (q *Queue) Get(id string) (model.ScheduledTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return model.ScheduledTask{}, false
	}
	return t.Clone(), true
}

// List returns a snapshot of every tracked task, in FIFO order.
func (q *Queue) List() []model.ScheduledTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.ScheduledTask, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		id := el.Value.(string)
		out = append(out, q.tasks[id].Clone())
	}
	return out
}

// Cancel cancels the task with the given id. A queued task transitions
// directly to cancelled without ever reaching the recorder. A task already
// handed to the recorder (downloading/recording/processing) cannot be
// cancelled here — the caller must cancel through the recorder supervisor
// instead, per spec. A task already in a terminal state is a no-op error.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("queue: unknown task %q", id)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("queue: task %q already in terminal state %q", id, task.Status)
	}
	if task.Status != model.TaskQueued {
		return fmt.Errorf("queue: task %q is %q, cancel through the recorder instead", id, task.Status)
	}

	task.Status = model.TaskCancelled
	q.tasks[id] = task
	if el, ok := q.index[id]; ok {
		q.order.Remove(el)
		delete(q.index, id)
	}
	return nil
}

// Retry re-queues a failed or cancelled task: a new ScheduledTask is
// appended with a fresh id, the same preset/channel/stream/url, and
// triggered_at = now (now is a parameter since this package must not call
// time.Now itself inside a deterministic test). The original task record is
// left untouched for auditability. newID is supplied by the caller (the
// engine layer owns id generation via google/uuid) to keep this package
// free of time/uuid side effects. now is called without the queue lock
// held, so it may read the original task through Get.
func (q *Queue) Retry(id, newID string, now func() model.ScheduledTask) error {
	q.mu.Lock()
	task, ok := q.tasks[id]
	q.mu.Unlock()

	if !ok {
		return fmt.Errorf("queue: unknown task %q", id)
	}
	if task.Status != model.TaskFailed && task.Status != model.TaskCancelled {
		return fmt.Errorf("queue: task %q is %q, only failed or cancelled tasks can be retried", id, task.Status)
	}

	fresh := now()
	fresh.ID = newID
	fresh.Status = model.TaskQueued

	q.mu.Lock()
	defer q.mu.Unlock()
	el := q.order.PushBack(fresh.ID)
	q.index[fresh.ID] = el
	q.tasks[fresh.ID] = fresh
	return nil
}

// MarkTerminal records a terminal transition reported by the recorder
// (completed/failed/cancelled), updating the task record and running the
// pump again so the next queued task, if any, is admitted.
func (q *Queue) MarkTerminal(ctx context.Context, id string, status model.TaskStatus, filePath string, fileSize int64, errMsg string) {
	q.mu.Lock()
	task, ok := q.tasks[id]
	if ok {
		task.Status = status
		task.FilePath = filePath
		task.FileSize = fileSize
		task.ErrorMessage = errMsg
		q.tasks[id] = task
	}
	q.mu.Unlock()

	q.Pump(ctx)
}

// Pump admits queued tasks into the recorder while capacity remains. It is
// idempotent and safe to call from multiple goroutines (the trigger
// pipeline, a completion callback, a retry) concurrently: a pumping flag
// under mu ensures only one admission loop runs at a time, and any
// concurrent caller's Pump becomes a no-op, trusting the in-flight loop to
// reassess capacity before it returns.
func (q *Queue) Pump(ctx context.Context) {
	defer q.publishQueueUpdate()

	q.mu.Lock()
	if q.pumping {
		q.mu.Unlock()
		return
	}
	q.pumping = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.pumping = false
		q.mu.Unlock()
	}()

	for {
		next, ok := q.nextAdmittable()
		if !ok {
			return
		}
		if err := q.recorder.Start(ctx, next); err != nil {
			q.cfg.Logger.Error("recorder failed to start task", "task_id", next.ID, "error", err)
			q.mu.Lock()
			failed := q.tasks[next.ID]
			failed.Status = model.TaskFailed
			failed.ErrorMessage = err.Error()
			q.tasks[next.ID] = failed
			q.mu.Unlock()
			continue
		}
		q.mu.Lock()
		started := q.tasks[next.ID]
		started.Status = model.TaskDownloading
		q.tasks[next.ID] = started
		q.mu.Unlock()
	}
}

// publishQueueUpdate emits one scheduled-download-queue-update event with
// the current queue snapshot. Called exactly once per Pump invocation,
// whether or not that call actually admitted a task, so repeated pumping of
// an idle queue is a no-op beyond this one event per call.
func (q *Queue) publishQueueUpdate() {
	if q.cfg.Bus == nil {
		return
	}
	snapshot := q.List()
	queue := make([]any, len(snapshot))
	for i, t := range snapshot {
		queue[i] = t
	}
	q.cfg.Bus.Publish(events.KindScheduledDownloadQueueUpdate, events.ScheduledDownloadQueueUpdatePayload{Queue: queue})
}

// nextAdmittable pops and returns the oldest queued task if the recorder
// has spare capacity, or ok=false if either the queue is empty or the
// recorder is at its concurrency cap.
func (q *Queue) nextAdmittable() (model.ScheduledTask, bool) {
	if q.recorder.ActiveCount() >= q.cfg.MaxConcurrent {
		return model.ScheduledTask{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for el := q.order.Front(); el != nil; el = el.Next() {
		id := el.Value.(string)
		task := q.tasks[id]
		if task.Status == model.TaskQueued {
			q.order.Remove(el)
			delete(q.index, id)
			return task, true
		}
	}
	return model.ScheduledTask{}, false
}
