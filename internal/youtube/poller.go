// SPDX-License-Identifier: MIT

package youtube

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/corvidwatch/livecap/internal/events"
	"github.com/corvidwatch/livecap/internal/model"
	"github.com/corvidwatch/livecap/internal/trigger"
	"github.com/corvidwatch/livecap/internal/util"
)

// ProbeConcurrency caps simultaneous yt-dlp liveness probes.
const ProbeConcurrency = 3

// RateLimitBackoffWindow is how long a rate-limited channel's effective
// interval is doubled for.
const RateLimitBackoffWindow = 5 * time.Minute

// PresetSource supplies the current set of enabled YouTube presets,
// reloaded at the start of every cycle so additions, removals, and
// enable/disable toggles take effect without restart.
type PresetSource interface {
	EnabledYouTubePresets() []model.Preset
}

// PresetDisabler persists a preset's enabled flag. Used by the poller to
// auto-disable a preset whose channel_id yields a 404.
type PresetDisabler interface {
	SetEnabled(presetID string, enabled bool) error
}

// Config configures the Poller.
type Config struct {
	Presets  PresetSource
	Disabler PresetDisabler
	Bus      *events.Bus
	Flags    *model.MonitoringFlags
	Trigger  *trigger.Pipeline
	Notifier *events.Notifier
	Logger   *slog.Logger

	// Interval is the base polling cadence (NewPoller applies a 90s
	// default if zero).
	Interval time.Duration
	// Binary is the yt-dlp executable used for liveness probes.
	Binary string
	// HTTPClient fetches the Atom feeds; defaults to a 15s-timeout client.
	HTTPClient *http.Client
	// Probe overrides the liveness probe function for tests.
	Probe ProbeFunc
}

// channelPacing tracks one channel's rate-limit state across cycles.
type channelPacing struct {
	rateLimitedUntil time.Time
	notifiedOutage   bool
}

// Poller implements internal/supervisor.Service: it polls every enabled
// YouTube preset's feed on Config.Interval, probing recent entries for
// liveness and feeding the trigger pipeline on the first live hit per
// channel per cycle.
type Poller struct {
	cfg   Config
	pace  map[string]*channelPacing
	paceMu sync.Mutex
}

// NewPoller builds a Poller, applying defaults for Interval, Binary, and
// HTTPClient where unset.
func NewPoller(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 90 * time.Second
	}
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = defaultHTTPClient
	}
	if cfg.Probe == nil {
		cfg.Probe = probeLive
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{cfg: cfg, pace: make(map[string]*channelPacing)}
}

func (p *Poller) Name() string { return "youtube-poller" }

// Run loops until ctx is cancelled, running one poll cycle every interval
// (plus an immediate cycle on start).
func (p *Poller) Run(ctx context.Context) error {
	if p.cfg.Bus != nil {
		p.cfg.Bus.Publish(events.KindYouTubePollingStatus, events.YouTubePollingStatusPayload{Active: true})
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			if p.cfg.Bus != nil {
				p.cfg.Bus.Publish(events.KindYouTubePollingStatus, events.YouTubePollingStatusPayload{Active: false})
			}
			return nil
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	presets := p.cfg.Presets.EnabledYouTubePresets()
	if p.cfg.Bus != nil {
		p.cfg.Bus.Publish(events.KindYouTubePollingStatus, events.YouTubePollingStatusPayload{Active: true, ChannelsCount: len(presets)})
	}

	sem := semaphore.NewWeighted(ProbeConcurrency)
	var wg sync.WaitGroup

	for _, preset := range presets {
		if p.skipThisCycle(preset.ChannelID) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		util.SafeGo("youtube-poll-channel", nil, func() {
			defer wg.Done()
			defer sem.Release(1)
			p.pollChannel(ctx, preset)
		}, func(r interface{}, stack []byte) {
			p.cfg.Logger.Error("panic polling youtube channel", "channel_id", preset.ChannelID, "recover", r, "stack", string(stack))
		})
	}

	wg.Wait()
}

// skipThisCycle reports whether channelID sits out this cycle. Within its
// rate-limit backoff window a channel is polled only on every second cycle
// after the 429, which doubles its effective interval.
func (p *Poller) skipThisCycle(channelID string) bool {
	p.paceMu.Lock()
	defer p.paceMu.Unlock()
	pc, ok := p.pace[channelID]
	if !ok || !time.Now().Before(pc.rateLimitedUntil) {
		return false
	}
	elapsed := time.Since(pc.rateLimitedUntil.Add(-RateLimitBackoffWindow))
	cycles := (elapsed + p.cfg.Interval/2) / p.cfg.Interval
	return cycles == 0 || cycles%2 == 1
}

func (p *Poller) pollChannel(ctx context.Context, preset model.Preset) {
	log := p.cfg.Logger.With("channel_id", preset.ChannelID)

	entries, status, err := fetchFeed(ctx, p.cfg.HTTPClient, preset.ChannelID)
	switch status {
	case feedStatusNotFound:
		log.Warn("youtube channel not found, disabling preset")
		if p.cfg.Disabler != nil {
			if derr := p.cfg.Disabler.SetEnabled(preset.ID, false); derr != nil {
				log.Error("failed to disable preset", "error", derr)
			}
		}
		if p.cfg.Bus != nil {
			p.cfg.Bus.Publish(events.KindYouTubeChannelError, events.YouTubeChannelErrorPayload{ChannelID: preset.ChannelID, Error: "頻道不存在"})
		}
		return
	case feedStatusRateLimited:
		p.enterRateLimitBackoff(preset.ChannelID)
		return
	case feedStatusError:
		log.Debug("youtube feed fetch failed, skipping this cycle", "error", err)
		return
	}

	p.clearRateLimitBackoff(preset.ChannelID)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		live := p.cfg.Probe(ctx, p.cfg.Binary, videoURL(entry.VideoID))
		if live != livenessLive {
			continue
		}

		now := time.Now()
		if p.cfg.Bus != nil {
			p.cfg.Bus.Publish(events.KindYouTubeStreamLive, events.YouTubeStreamLivePayload{
				ChannelID:   preset.ChannelID,
				ChannelName: preset.ChannelName,
				VideoID:     entry.VideoID,
				Timestamp:   now,
				Paused:      p.cfg.Flags != nil && p.cfg.Flags.Paused(),
			})
		}
		if p.cfg.Trigger != nil {
			ev := trigger.LiveEvent{
				Platform:    model.PlatformYouTube,
				ChannelID:   preset.ChannelID,
				ChannelName: preset.ChannelName,
				StreamID:    entry.VideoID,
				StreamURL:   videoURL(entry.VideoID),
				Timestamp:   now,
			}
			if _, terr := p.cfg.Trigger.Trigger(ctx, ev); terr != nil {
				log.Error("trigger pipeline error", "error", terr)
			}
		}
		// Stop probing further entries for this channel this cycle: the
		// first live hit is authoritative.
		return
	}
}

func (p *Poller) enterRateLimitBackoff(channelID string) {
	p.paceMu.Lock()
	pc, ok := p.pace[channelID]
	if !ok {
		pc = &channelPacing{}
		p.pace[channelID] = pc
	}
	alreadyBackingOff := time.Now().Before(pc.rateLimitedUntil)
	pc.rateLimitedUntil = time.Now().Add(RateLimitBackoffWindow)
	notify := !pc.notifiedOutage
	pc.notifiedOutage = true
	p.paceMu.Unlock()

	if alreadyBackingOff {
		return
	}
	if notify && p.cfg.Notifier != nil {
		p.cfg.Notifier.Notify(context.Background(), events.LevelWarning, "YouTube polling disrupted", "rate limited, backing off for "+RateLimitBackoffWindow.String())
	}
}

func (p *Poller) clearRateLimitBackoff(channelID string) {
	p.paceMu.Lock()
	defer p.paceMu.Unlock()
	if pc, ok := p.pace[channelID]; ok {
		pc.notifiedOutage = false
	}
}
