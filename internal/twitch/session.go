// SPDX-License-Identifier: MIT

// Package twitch implements the PubSub-based stream-up/stream-down
// detector: one or more long-lived WebSocket sessions to Twitch's PubSub
// edge, each owning up to 50 video-playback topics, with exponential
// back-off reconnect and a single disconnect event per outage.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corvidwatch/livecap/internal/backoff"
	"github.com/corvidwatch/livecap/internal/events"
)

const (
	pubSubURL = "wss://pubsub-edge.twitch.tv"

	// MaxTopicsPerConnection is the hard cap Twitch's PubSub edge enforces
	// per LISTEN frame; the detector shards topics into batches of at
	// most this many.
	MaxTopicsPerConnection = 50

	pingInterval = 240 * time.Second
	pingTimeout  = 10 * time.Second

	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 120 * time.Second
)

// listenRequest is the outbound frame subscribing to a batch of topics.
type listenRequest struct {
	Type  string       `json:"type"`
	Nonce string       `json:"nonce"`
	Data  listenFrame  `json:"data"`
}

type listenFrame struct {
	Topics    []string `json:"topics"`
	AuthToken string   `json:"auth_token,omitempty"`
}

// inboundFrame is the outer envelope every PubSub message arrives in.
type inboundFrame struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
	Data  struct {
		Topic   string `json:"topic"`
		Message string `json:"message"`
	} `json:"data"`
}

// videoPlaybackMessage is the inner JSON carried by a video-playback-by-id
// topic message that the detector cares about; Twitch's payload has several
// other "type" values (commercial, stream-up, stream-down, viewcount) and
// this struct only decodes the two that matter here.
type videoPlaybackMessage struct {
	Type       string `json:"type"`
	ServerTime float64 `json:"server_time"`
}

// topicSub describes one channel this session is watching.
type topicSub struct {
	ChannelID   string
	ChannelName string
}

// sessionConfig configures a single PubSub WebSocket connection.
type sessionConfig struct {
	Topics []topicSub
	Bus    *events.Bus
	Flags  PauseReader
	Logger *slog.Logger

	// OnStreamUp is invoked synchronously whenever a tracked channel's
	// stream-up message arrives, in addition to the bus publication, so
	// the detector can feed it into the trigger pipeline without the
	// pipeline having to subscribe to the bus itself.
	OnStreamUp func(channelID, channelName string, at time.Time)

	DialFunc func(ctx context.Context, url string) (*websocket.Conn, error)
}

// PauseReader is the narrow slice of model.MonitoringFlags the session
// needs, to avoid importing internal/model just for a bool read.
type PauseReader interface {
	Paused() bool
}

func defaultDial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

// session owns one WebSocket connection and the at-most-50 topics
// subscribed on it. run blocks until ctx is cancelled, reconnecting with
// exponential back-off after every dial, LISTEN, read or PING failure.
type session struct {
	cfg        sessionConfig
	backoff    *backoff.Backoff
	topicIndex map[string]topicSub // topic string -> sub, for fast lookup on message receipt

	mu               sync.Mutex
	disconnectNotified bool
}

func newSession(cfg sessionConfig) *session {
	if cfg.DialFunc == nil {
		cfg.DialFunc = defaultDial
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	idx := make(map[string]topicSub, len(cfg.Topics))
	for _, t := range cfg.Topics {
		idx[videoPlaybackTopic(t.ChannelID)] = t
	}
	return &session{
		cfg:        cfg,
		backoff:    backoff.New(reconnectInitialDelay, reconnectMaxDelay),
		topicIndex: idx,
	}
}

func videoPlaybackTopic(channelID string) string {
	return "video-playback-by-id." + channelID
}

// run is the session's main loop: connect, LISTEN, read until broken,
// reconnect with back-off. Returns nil only when ctx is cancelled.
func (s *session) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			continue
		}

		s.cfg.Logger.Warn("pubsub session disconnected, reconnecting", "error", err, "delay", s.backoff.CurrentDelay())
		s.notifyDisconnectOnce(err)
		s.backoff.RecordFailure()
		if waitErr := s.backoff.Wait(ctx); waitErr != nil {
			return nil
		}
	}
}

// notifyDisconnectOnce publishes a single twitch-pubsub-status(connected:
// false) event per outage, suppressing repeats until a reconnect succeeds.
func (s *session) notifyDisconnectOnce(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnectNotified {
		return
	}
	s.disconnectNotified = true
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.KindTwitchPubSubStatus, events.TwitchPubSubStatusPayload{
			Connected: false,
			Message:   err.Error(),
		})
	}
}

func (s *session) clearDisconnectNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectNotified = false
}

func (s *session) runOnce(ctx context.Context) error {
	conn, err := s.cfg.DialFunc(ctx, pubSubURL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	topics := make([]string, 0, len(s.cfg.Topics))
	for _, t := range s.cfg.Topics {
		topics = append(topics, videoPlaybackTopic(t.ChannelID))
	}
	req := listenRequest{Type: "LISTEN", Nonce: fmt.Sprintf("%d", time.Now().UnixNano()), Data: listenFrame{Topics: topics}}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.backoff.RecordSuccess()
	s.clearDisconnectNotice()
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(events.KindTwitchPubSubStatus, events.TwitchPubSubStatusPayload{Connected: true})
	}

	readErrCh := make(chan error, 1)
	go func() { readErrCh <- s.readLoop(conn) }()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil
		case err := <-readErrCh:
			return err
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(pingTimeout))
			if err := conn.WriteJSON(map[string]string{"type": "PING"}); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (s *session) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleFrame(data)
	}
}

func (s *session) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.cfg.Logger.Debug("pubsub frame decode error", "error", err)
		return
	}

	switch frame.Type {
	case "PING":
		// No reply is sent to a JSON PING frame; the session keeps the
		// connection alive with its own PING every pingInterval, and
		// gorilla's control-frame handler answers RFC6455 ping frames at
		// the transport level.
	case "RESPONSE":
		if frame.Error != "" {
			s.cfg.Logger.Warn("pubsub LISTEN rejected", "error", frame.Error)
		}
	case "RECONNECT":
		s.cfg.Logger.Info("pubsub edge requested reconnect")
	case "MESSAGE":
		s.handleMessage(frame)
	}
}

func (s *session) handleMessage(frame inboundFrame) {
	sub, ok := s.topicIndex[frame.Data.Topic]
	if !ok {
		return
	}

	var inner videoPlaybackMessage
	if err := json.Unmarshal([]byte(frame.Data.Message), &inner); err != nil {
		s.cfg.Logger.Debug("pubsub message decode error", "error", err)
		return
	}

	now := time.Now()
	paused := s.cfg.Flags != nil && s.cfg.Flags.Paused()
	payload := events.TwitchStreamPayload{
		ChannelID:   sub.ChannelID,
		ChannelName: sub.ChannelName,
		Timestamp:   now,
		Paused:      paused,
	}

	switch inner.Type {
	case "stream-up":
		if s.cfg.Bus != nil {
			s.cfg.Bus.Publish(events.KindTwitchStreamUp, payload)
		}
		if s.cfg.OnStreamUp != nil {
			s.cfg.OnStreamUp(sub.ChannelID, sub.ChannelName, now)
		}
	case "stream-down":
		if s.cfg.Bus != nil {
			s.cfg.Bus.Publish(events.KindTwitchStreamDown, payload)
		}
	}
}
