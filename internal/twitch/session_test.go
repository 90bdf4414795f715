package twitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corvidwatch/livecap/internal/events"
)

// newLoopbackServer starts an httptest server that upgrades to a
// WebSocket, reads the client's LISTEN frame, and then replays whatever
// raw JSON text frames the test hands it via the returned send function.
func newLoopbackServer(t *testing.T) (wsURL string, send func(string), closeServer func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drain the LISTEN frame.
		_, _, _ = conn.ReadMessage()
		connCh <- conn
	}))

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	u.Scheme = "ws"

	var conn *websocket.Conn
	send = func(payload string) {
		if conn == nil {
			conn = <-connCh
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(payload))
	}
	return u.String(), send, srv.Close
}

func TestSession_StreamUpMessagePublishesAndInvokesCallback(t *testing.T) {
	wsURL, send, closeServer := newLoopbackServer(t)
	defer closeServer()

	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	var mu sync.Mutex
	var gotChannelID, gotChannelName string
	callbackDone := make(chan struct{}, 1)

	s := newSession(sessionConfig{
		Topics: []topicSub{{ChannelID: "123", ChannelName: "alpha"}},
		Bus:    bus,
		OnStreamUp: func(channelID, channelName string, at time.Time) {
			mu.Lock()
			gotChannelID, gotChannelName = channelID, channelName
			mu.Unlock()
			callbackDone <- struct{}{}
		},
		DialFunc: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			return conn, err
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- s.run(ctx) }()

	frame := `{"type":"MESSAGE","data":{"topic":"video-playback-by-id.123","message":"{\"type\":\"stream-up\"}"}}`
	send(frame)

	select {
	case <-callbackDone:
	case <-time.After(2 * time.Second):
		t.Fatal("OnStreamUp callback not invoked")
	}

	mu.Lock()
	if gotChannelID != "123" || gotChannelName != "alpha" {
		t.Errorf("callback args = %q,%q, want 123,alpha", gotChannelID, gotChannelName)
	}
	mu.Unlock()

	foundUp := false
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			if ev.Kind == events.KindTwitchStreamUp {
				foundUp = true
			}
		case <-time.After(time.Second):
		}
	}
	if !foundUp {
		t.Error("KindTwitchStreamUp not published on the bus")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("session.run did not return after ctx cancellation")
	}
}

func TestVideoPlaybackTopic_FormatsChannelID(t *testing.T) {
	if got := videoPlaybackTopic("42"); got != "video-playback-by-id.42" {
		t.Errorf("videoPlaybackTopic = %q, want video-playback-by-id.42", got)
	}
}

func TestSession_UnknownTopicIgnored(t *testing.T) {
	s := newSession(sessionConfig{Topics: []topicSub{{ChannelID: "123", ChannelName: "alpha"}}})
	// handleMessage with an unrecognized topic must not panic even with no
	// bus or callback configured.
	s.handleFrame([]byte(`{"type":"MESSAGE","data":{"topic":"video-playback-by-id.999","message":"{\"type\":\"stream-up\"}"}}`))
}

func TestSession_MalformedFrameIgnored(t *testing.T) {
	s := newSession(sessionConfig{})
	s.handleFrame([]byte(`not json`))
}
