// SPDX-License-Identifier: MIT

// Package supervisor provides a supervision tree for managing the engine's
// long-lived tasks (the Twitch detector and the YouTube poller).
//
// It implements Erlang/OTP-style process supervision on top of
// github.com/thejerf/suture/v4, providing:
//   - Automatic restart of failed services with the library's own
//     failure-decay backoff
//   - Graceful shutdown on context cancellation
//   - Dynamic service registration while already running
//   - Health status reporting
//
// Example:
//
//	sup := supervisor.New(supervisor.Config{
//	    ShutdownTimeout: 10 * time.Second,
//	})
//
//	sup.Add(twitchDetector)
//	sup.Add(youtubeDetector)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	if err := sup.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
)

// Service is the interface that supervised services must implement.
// Implementations should block until the context is cancelled or an error occurs.
type Service interface {
	// Run starts the service. It should block until ctx is cancelled or
	// the service encounters an unrecoverable error.
	Run(ctx context.Context) error

	// Name returns the service's identifier.
	Name() string
}

// ServiceState represents the current state of a supervised service.
type ServiceState int

const (
	ServiceStateIdle     ServiceState = iota // Not started
	ServiceStateRunning                      // Running normally
	ServiceStateStopping                     // Being stopped
	ServiceStateFailed                       // Failed, may restart
	ServiceStateStopped                      // Stopped, terminal
)

func (s ServiceState) String() string {
	switch s {
	case ServiceStateIdle:
		return "idle"
	case ServiceStateRunning:
		return "running"
	case ServiceStateStopping:
		return "stopping"
	case ServiceStateFailed:
		return "failed"
	case ServiceStateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ServiceStatus contains status information about a supervised service.
type ServiceStatus struct {
	Name      string
	State     ServiceState
	StartTime time.Time
	Uptime    time.Duration
	Restarts  int
	LastError error
}

// Config contains supervisor configuration.
type Config struct {
	// ShutdownTimeout is the maximum time to wait for services to stop gracefully.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// FailureBackoff is how long suture waits before restarting a service
	// that returned a non-nil error. Default: 1 second, matching the
	// restart-delay the supervisor used before suture was wired in.
	FailureBackoff time.Duration

	// Logger is optional; if set, supervisor and per-service lifecycle
	// events are logged here.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout: 10 * time.Second,
		FailureBackoff:  1 * time.Second,
	}
}

// Supervisor manages a collection of services, restarting them on failure.
// It is a thin, name-addressable facade over *suture.Supervisor: suture owns
// the restart/backoff bookkeeping, this type owns the name → token mapping
// and the Status() reporting that suture itself does not expose.
type Supervisor struct {
	cfg Config
	sup *suture.Supervisor

	mu       sync.RWMutex
	services map[string]*serviceEntry
	running  bool

	cancel context.CancelFunc
	doneCh chan error
}

// serviceEntry tracks a single service's lifecycle and suture registration.
type serviceEntry struct {
	service Service
	token   suture.ServiceToken

	stateMu   sync.Mutex
	state     ServiceState
	startTime time.Time
	restarts  int
	lastError error
}

func (e *serviceEntry) snapshot() (ServiceState, time.Time, int, error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state, e.startTime, e.restarts, e.lastError
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 1 * time.Second
	}

	s := &Supervisor{
		cfg:      cfg,
		services: make(map[string]*serviceEntry),
	}

	s.sup = suture.New("livecap", suture.Spec{
		EventHook:      s.onEvent,
		FailureBackoff: cfg.FailureBackoff,
	})

	return s
}

// onEvent logs suture lifecycle events if a Logger is configured. It does
// not drive Status() — entry state is updated directly by the adapter,
// which is simpler to reason about than reconstructing state from events.
func (s *Supervisor) onEvent(ev suture.Event) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Info("supervisor event", "event", ev.String())
}

// Add registers a service with the supervisor. If the supervisor is already
// running, the service is started immediately (suture supports registration
// after Serve has begun). Returns an error if a service with the same name
// already exists.
func (s *Supervisor) Add(svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := svc.Name()
	if _, exists := s.services[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}

	entry := &serviceEntry{
		service: svc,
		state:   ServiceStateIdle,
	}
	entry.token = s.sup.Add(&serviceAdapter{entry: entry})
	s.services[name] = entry

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info("supervisor: added service", "service", name)
	}

	return nil
}

// Remove unregisters and stops a service.
func (s *Supervisor) Remove(name string) error {
	s.mu.Lock()
	entry, exists := s.services[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("service %q not found", name)
	}
	delete(s.services, name)
	s.mu.Unlock()

	entry.stateMu.Lock()
	entry.state = ServiceStateStopping
	entry.stateMu.Unlock()

	if err := s.sup.Remove(entry.token); err != nil {
		return fmt.Errorf("failed to remove service %q: %w", name, err)
	}

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info("supervisor: removed service", "service", name)
	}
	return nil
}

// Status returns the current status of all services.
func (s *Supervisor) Status() []ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ServiceStatus, 0, len(s.services))
	now := time.Now()

	for name, entry := range s.services {
		state, startTime, restarts, lastErr := entry.snapshot()

		var uptime time.Duration
		if !startTime.IsZero() && state == ServiceStateRunning {
			uptime = now.Sub(startTime)
		}

		result = append(result, ServiceStatus{
			Name:      name,
			State:     state,
			StartTime: startTime,
			Uptime:    uptime,
			Restarts:  restarts,
			LastError: lastErr,
		})
	}

	return result
}

// ServiceCount returns the number of registered services.
func (s *Supervisor) ServiceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.services)
}

// Run starts all registered services and blocks until ctx is cancelled or a
// service causes suture itself to give up (e.g. a panic loop past its
// failure threshold). When ctx is cancelled, all services are stopped
// gracefully, bounded by ShutdownTimeout.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("supervisor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.doneCh = s.sup.ServeBackground(runCtx)
	count := len(s.services)
	s.mu.Unlock()

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info("supervisor started", "services", count)
	}

	<-runCtx.Done()

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info("supervisor: shutdown signal received, stopping services")
	}

	return s.shutdown()
}

// shutdown waits for suture's background Serve loop to exit, bounded by
// ShutdownTimeout.
func (s *Supervisor) shutdown() error {
	s.mu.Lock()
	s.running = false
	done := s.doneCh
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case err := <-done:
		if s.cfg.Logger != nil {
			s.cfg.Logger.Info("supervisor: all services stopped")
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("supervisor exited with error: %w", err)
		}
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		if s.cfg.Logger != nil {
			s.cfg.Logger.Warn("supervisor: shutdown timeout exceeded")
		}
		return errors.New("shutdown timeout exceeded")
	}
}

// serviceAdapter bridges Service (this package's restart-friendly interface)
// to suture.Service, updating entry state around each run so Status() has
// something to report without needing to parse suture's event stream.
type serviceAdapter struct {
	entry *serviceEntry
}

func (a *serviceAdapter) Serve(ctx context.Context) error {
	e := a.entry

	e.stateMu.Lock()
	e.state = ServiceStateRunning
	e.startTime = time.Now()
	e.stateMu.Unlock()

	err := e.service.Run(ctx)

	if ctx.Err() != nil {
		e.stateMu.Lock()
		e.state = ServiceStateStopped
		e.stateMu.Unlock()
		// A service stopping because its context was cancelled is a clean
		// exit from suture's perspective: it must not be restarted.
		return nil
	}

	e.stateMu.Lock()
	e.state = ServiceStateFailed
	e.lastError = err
	e.restarts++
	e.stateMu.Unlock()

	// A non-nil return (with ctx still live) tells suture to restart this
	// service after its configured FailureBackoff.
	if err == nil {
		err = errors.New("service exited without error but context was not cancelled")
	}
	return err
}
