// SPDX-License-Identifier: MIT

package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/corvidwatch/livecap/internal/events"
	"github.com/corvidwatch/livecap/internal/model"
	"github.com/corvidwatch/livecap/internal/trigger"
	"github.com/corvidwatch/livecap/internal/util"
)

// PresetSource supplies the current set of enabled Twitch presets to watch.
// Implemented by internal/presets.Store.
type PresetSource interface {
	EnabledTwitchPresets() []model.Preset
}

// Config configures the detector.
type Config struct {
	Bus     *events.Bus
	Flags   *model.MonitoringFlags
	Presets PresetSource
	Trigger *trigger.Pipeline
	Logger  *slog.Logger
}

// Detector owns the sharded set of PubSub sessions watching every enabled
// Twitch preset's channel. It implements internal/supervisor.Service so it
// can be added directly to the process-wide supervision tree.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector. Presets are read fresh each time Run
// starts — the detector does not itself poll for preset changes; a restart
// (driven by the supervisor after a failure, or an explicit host toggle) is
// what picks up edits, the same one-shot manager-per-run shape
// stream.Manager uses.
func NewDetector(cfg Config) *Detector {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Detector{cfg: cfg}
}

func (d *Detector) Name() string { return "twitch-detector" }

// Run shards the enabled preset list into batches of at most
// MaxTopicsPerConnection and runs one session per batch until ctx is
// cancelled. Sessions reconnect on their own after failures; a session that
// panics stops, and its error is returned once every session has returned.
func (d *Detector) Run(ctx context.Context) error {
	presets := d.cfg.Presets.EnabledTwitchPresets()
	if len(presets) == 0 {
		<-ctx.Done()
		return nil
	}

	batches := shardPresets(presets, MaxTopicsPerConnection)

	var wg sync.WaitGroup
	errCh := make(chan error, len(batches))

	for _, batch := range batches {
		wg.Add(1)
		util.SafeGo("twitch-session", nil, func() {
			defer wg.Done()
			s := newSession(sessionConfig{
				Topics:     batch,
				Bus:        d.cfg.Bus,
				Flags:      d.cfg.Flags,
				Logger:     d.cfg.Logger,
				OnStreamUp: d.onStreamUp,
			})
			if err := s.run(ctx); err != nil {
				errCh <- err
			}
		}, func(r interface{}, stack []byte) {
			d.cfg.Logger.Error("panic in twitch session", "recover", r, "stack", string(stack))
			errCh <- fmt.Errorf("twitch session panic: %v", r)
		})
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Detector) onStreamUp(channelID, channelName string, at time.Time) {
	if d.cfg.Trigger == nil {
		return
	}
	ev := trigger.LiveEvent{
		Platform:    model.PlatformTwitch,
		ChannelID:   channelID,
		ChannelName: channelName,
		StreamID:    channelID + "-" + at.UTC().Format("20060102T150405.000000000"),
		StreamURL:   streamURL(channelName),
		Timestamp:   at,
	}
	if _, err := d.cfg.Trigger.Trigger(context.Background(), ev); err != nil {
		d.cfg.Logger.Error("trigger pipeline error", "error", err, "channel_id", channelID)
	}
}

// streamURL builds the canonical watch URL for a Twitch channel name.
func streamURL(channelName string) string {
	return "https://www.twitch.tv/" + strings.ToLower(channelName)
}

func shardPresets(presets []model.Preset, shardSize int) [][]topicSub {
	var batches [][]topicSub
	for i := 0; i < len(presets); i += shardSize {
		end := i + shardSize
		if end > len(presets) {
			end = len(presets)
		}
		batch := make([]topicSub, 0, end-i)
		for _, p := range presets[i:end] {
			batch = append(batch, topicSub{ChannelID: p.ChannelID, ChannelName: p.ChannelName})
		}
		batches = append(batches, batch)
	}
	return batches
}
