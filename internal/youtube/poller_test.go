package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/corvidwatch/livecap/internal/events"
	"github.com/corvidwatch/livecap/internal/model"
	"github.com/corvidwatch/livecap/internal/trigger"
)

type stubPresetSource struct {
	presets []model.Preset
}

func (s *stubPresetSource) EnabledYouTubePresets() []model.Preset { return s.presets }

type stubDisabler struct {
	mu       sync.Mutex
	disabled []string
}

func (d *stubDisabler) SetEnabled(presetID string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !enabled {
		d.disabled = append(d.disabled, presetID)
	}
	return nil
}

func newFeedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if body != "" {
			w.Write([]byte(body))
		}
	}))
}

func TestPoller_LiveEntryInvokesTrigger(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, sampleFeedXML)
	defer srv.Close()

	presetSrc := &stubPresetSource{presets: []model.Preset{{ID: "p1", ChannelID: "UC123", ChannelName: "chan", Enabled: true, Platform: model.PlatformYouTube, OutputDir: "."}}}

	probeCalls := 0
	probe := func(ctx context.Context, binary, url string) liveness {
		probeCalls++
		return livenessLive
	}

	bus := events.NewBus()
	flags := &model.MonitoringFlags{}
	queue := &stubTriggerQueue{}
	pipeline := trigger.New(trigger.Config{MinFreeBytes: 0, Cooldown: time.Minute}, flags, &stubPresetFinder{preset: model.Preset{ID: "p1", ChannelID: "UC123", ChannelName: "chan", Enabled: true, OutputDir: "."}}, queue, bus, nil)

	p := NewPoller(Config{
		Presets:    presetSrc,
		Bus:        bus,
		Flags:      flags,
		Trigger:    pipeline,
		Interval:   time.Hour,
		HTTPClient: redirectingClient(srv.URL),
		Probe:      probe,
	})

	p.runCycle(context.Background())

	if probeCalls == 0 {
		t.Fatal("probe never invoked")
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(queue.enqueued))
	}
}

func TestPoller_NotFoundDisablesPreset(t *testing.T) {
	srv := newFeedServer(t, http.StatusNotFound, "")
	defer srv.Close()

	presetSrc := &stubPresetSource{presets: []model.Preset{{ID: "p1", ChannelID: "UC404", Enabled: true}}}
	disabler := &stubDisabler{}

	p := NewPoller(Config{
		Presets:    presetSrc,
		Disabler:   disabler,
		Interval:   time.Hour,
		HTTPClient: redirectingClient(srv.URL),
		Probe:      func(ctx context.Context, binary, url string) liveness { return livenessUnknown },
	})

	p.runCycle(context.Background())

	disabler.mu.Lock()
	defer disabler.mu.Unlock()
	if len(disabler.disabled) != 1 || disabler.disabled[0] != "p1" {
		t.Errorf("disabled = %v, want [p1]", disabler.disabled)
	}
}

func TestPoller_RateLimitedChannelSkippedNextCycle(t *testing.T) {
	srv := newFeedServer(t, http.StatusTooManyRequests, "")
	defer srv.Close()

	presetSrc := &stubPresetSource{presets: []model.Preset{{ID: "p1", ChannelID: "UC429", Enabled: true}}}
	probeCalls := 0

	p := NewPoller(Config{
		Presets:    presetSrc,
		Interval:   time.Hour,
		HTTPClient: redirectingClient(srv.URL),
		Probe:      func(ctx context.Context, binary, url string) liveness { probeCalls++; return livenessUnknown },
	})

	p.runCycle(context.Background())
	p.runCycle(context.Background())

	if probeCalls != 0 {
		t.Errorf("probeCalls = %d, want 0 (429 never reaches the probe)", probeCalls)
	}
	if !p.skipThisCycle("UC429") {
		t.Error("channel should be in rate-limit backoff after a 429")
	}
}

// stubPresetFinder and stubTriggerQueue mirror the ones in
// internal/trigger's own tests; duplicated here (not imported) since that
// package's test helpers are unexported.
type stubPresetFinder struct {
	preset model.Preset
}

func (s *stubPresetFinder) FindEnabled(platform model.Platform, channelID string) (model.Preset, bool) {
	if s.preset.ChannelID == channelID {
		return s.preset, true
	}
	return model.Preset{}, false
}

func (s *stubPresetFinder) RecordTrigger(presetID string, at time.Time) error { return nil }

type stubTriggerQueue struct {
	enqueued []model.ScheduledTask
}

func (q *stubTriggerQueue) Enqueue(task model.ScheduledTask) { q.enqueued = append(q.enqueued, task) }
func (q *stubTriggerQueue) Pump(ctx context.Context)         {}

// redirectingClient returns an http.Client whose Transport rewrites every
// request to target, so fetchFeed's hardcoded YouTube URL can be tested
// against an httptest server without changing feed.go's signature.
func redirectingClient(target string) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			newReq := req.Clone(req.Context())
			targetURL, err := http.NewRequest(req.Method, target, nil)
			if err != nil {
				return nil, err
			}
			newReq.URL = targetURL.URL
			newReq.Host = targetURL.URL.Host
			return http.DefaultTransport.RoundTrip(newReq)
		}),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
