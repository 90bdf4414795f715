package recorder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/corvidwatch/livecap/internal/model"
)

type stubPresetResolver struct {
	presets map[string]model.Preset
}

func (r *stubPresetResolver) Preset(id string) (model.Preset, bool) {
	p, ok := r.presets[id]
	return p, ok
}

type stubSink struct {
	mu       sync.Mutex
	terminal []string
	status   map[string]model.TaskStatus
}

func newStubSink() *stubSink { return &stubSink{status: make(map[string]model.TaskStatus)} }

func (s *stubSink) MarkTerminal(ctx context.Context, id string, status model.TaskStatus, filePath string, fileSize int64, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminal = append(s.terminal, id)
	s.status[id] = status
}

func (s *stubSink) statusOf(id string) (model.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[id]
	return st, ok
}

// writeFakeBinary writes a shell script standing in for yt-dlp: it prints
// a progress line then exits with the given code, simulating a successful
// or failed capture without depending on a real yt-dlp install.
func writeFakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake capture binary is a POSIX shell script")
	}
	path := filepath.Join(t.TempDir(), "fake-yt-dlp.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake binary: %v", err)
	}
	return path
}

func testPreset(id, outDir string) model.Preset {
	return model.Preset{
		ID:               id,
		ChannelID:        "chan1",
		ChannelName:      "alpha",
		Platform:         model.PlatformTwitch,
		Enabled:          true,
		Quality:          model.QualityBest,
		ContentType:      model.ContentVideoAudio,
		OutputDir:        outDir,
		FilenameTemplate: "capture_{channel_name}",
		ContainerFormat:  model.ContainerMP4,
	}
}

func TestSupervisor_StartToCompleted(t *testing.T) {
	outDir := t.TempDir()
	binary := writeFakeBinary(t, `
out="$(echo "$@" | grep -o '\-o [^ ]*' | cut -d' ' -f2)"
touch "$out"
echo "[download]  50.0% of 1.00MiB at 1.00MiB/s ETA 00:01"
echo "[download] 100.0% of 1.00MiB at 1.00MiB/s ETA 00:00"
exit 0
`)

	resolver := &stubPresetResolver{presets: map[string]model.Preset{"p1": testPreset("p1", outDir)}}
	sink := newStubSink()
	sup := NewSupervisor(Config{Presets: resolver, Sink: sink, Binary: binary})

	task := model.ScheduledTask{ID: "task1", PresetID: "p1", ChannelName: "alpha", Platform: model.PlatformTwitch, StreamURL: "https://www.twitch.tv/alpha"}
	if err := sup.Start(context.Background(), task); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if sup.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1 immediately after Start", sup.ActiveCount())
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := sink.statusOf("task1"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for terminal transition")
		case <-time.After(10 * time.Millisecond):
		}
	}

	status, _ := sink.statusOf("task1")
	if status != model.TaskCompleted {
		t.Errorf("status = %v, want completed", status)
	}
	if sup.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0 after completion", sup.ActiveCount())
	}
	if leaked := sup.LeakedProcesses(); len(leaked) != 0 {
		t.Errorf("LeakedProcesses = %v, want none once supervise has reaped the process", leaked)
	}
}

func TestSupervisor_AdHocDownloadAppliesRange(t *testing.T) {
	outDir := t.TempDir()
	binary := writeFakeBinary(t, `
out="$(echo "$@" | grep -o '\-o [^ ]*' | cut -d' ' -f2)"
touch "$out"
echo "$@" > "$out.args"
exit 0
`)

	resolver := &stubPresetResolver{presets: map[string]model.Preset{"p1": testPreset("p1", outDir)}}
	sink := newStubSink()
	sup := NewSupervisor(Config{Presets: resolver, Sink: sink, Binary: binary})

	task := model.ScheduledTask{
		ID: "task1", PresetID: "p1", ChannelName: "alpha", Platform: model.PlatformTwitch,
		StreamURL: "https://example.invalid/vod", AdHoc: true, RangeStart: 30, RangeEnd: 90,
	}
	if err := sup.Start(context.Background(), task); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := sink.statusOf("task1"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for terminal transition")
		case <-time.After(10 * time.Millisecond):
		}
	}

	files, err := filepath.Glob(filepath.Join(outDir, "*.args"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected exactly one captured args file, got %v (err=%v)", files, err)
	}
	contents, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("failed to read captured args: %v", err)
	}
	if !strings.Contains(string(contents), "--download-sections *00:00:30-00:01:30") {
		t.Errorf("spawned args = %q, missing ad-hoc range flag", contents)
	}
	if strings.Contains(string(contents), "--live-from-start") {
		t.Errorf("spawned args = %q, ad-hoc download should not pass --live-from-start", contents)
	}
}

func TestSupervisor_ProbeDurationUsesInjectedFunc(t *testing.T) {
	resolver := &stubPresetResolver{}
	sink := newStubSink()
	called := false
	sup := NewSupervisor(Config{
		Presets: resolver,
		Sink:    sink,
		DurationProbe: func(ctx context.Context, binary, videoURL string) (int, bool) {
			called = true
			return 3600, true
		},
	})

	seconds, ok := sup.ProbeDuration(context.Background(), "https://example.invalid/vod")
	if !called {
		t.Fatal("expected injected DurationProbe to be called")
	}
	if !ok || seconds != 3600 {
		t.Errorf("ProbeDuration = (%d, %v), want (3600, true)", seconds, ok)
	}
}

func TestSupervisor_SpawnFailureReturnsError(t *testing.T) {
	outDir := t.TempDir()
	resolver := &stubPresetResolver{presets: map[string]model.Preset{"p1": testPreset("p1", outDir)}}
	sink := newStubSink()
	sup := NewSupervisor(Config{Presets: resolver, Sink: sink, Binary: filepath.Join(outDir, "does-not-exist")})

	task := model.ScheduledTask{ID: "task1", PresetID: "p1", ChannelName: "alpha", StreamURL: "https://www.twitch.tv/alpha"}
	if err := sup.Start(context.Background(), task); err == nil {
		t.Fatal("expected Start to fail for a nonexistent binary")
	}
	if sup.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0 after a failed spawn", sup.ActiveCount())
	}
}

func TestSupervisor_UnknownPresetRejected(t *testing.T) {
	resolver := &stubPresetResolver{presets: map[string]model.Preset{}}
	sink := newStubSink()
	sup := NewSupervisor(Config{Presets: resolver, Sink: sink})

	task := model.ScheduledTask{ID: "task1", PresetID: "missing"}
	if err := sup.Start(context.Background(), task); err == nil {
		t.Fatal("expected error for unknown preset id")
	}
}

func TestSupervisor_StreamInterruptionPreservesFile(t *testing.T) {
	outDir := t.TempDir()
	binary := writeFakeBinary(t, `
out="$(echo "$@" | grep -o '\-o [^ ]*' | cut -d' ' -f2)"
touch "$out"
echo "partial write before drop" 1>&2
echo "Stream ended; reconnecting" 1>&2
exit 1
`)

	resolver := &stubPresetResolver{presets: map[string]model.Preset{"p1": testPreset("p1", outDir)}}
	sink := newStubSink()
	sup := NewSupervisor(Config{Presets: resolver, Sink: sink, Binary: binary})

	task := model.ScheduledTask{ID: "task1", PresetID: "p1", ChannelName: "alpha", StreamURL: "https://www.twitch.tv/alpha"}
	if err := sup.Start(context.Background(), task); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := sink.statusOf("task1"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for terminal transition")
		case <-time.After(10 * time.Millisecond):
		}
	}

	status, _ := sink.statusOf("task1")
	if status != model.TaskCompleted {
		t.Errorf("stream-interrupted exit should still report TaskCompleted with the partial file, got %v", status)
	}
}

func TestSupervisor_CancelKillsProcessAndMarksCancelled(t *testing.T) {
	outDir := t.TempDir()
	binary := writeFakeBinary(t, `
out="$(echo "$@" | grep -o '\-o [^ ]*' | cut -d' ' -f2)"
touch "$out"
sleep 30
`)

	resolver := &stubPresetResolver{presets: map[string]model.Preset{"p1": testPreset("p1", outDir)}}
	sink := newStubSink()
	sup := NewSupervisor(Config{Presets: resolver, Sink: sink, Binary: binary})

	task := model.ScheduledTask{ID: "task1", PresetID: "p1", ChannelName: "alpha", StreamURL: "https://www.twitch.tv/alpha"}
	if err := sup.Start(context.Background(), task); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := sup.Cancel(context.Background(), "task1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	status, ok := sink.statusOf("task1")
	if !ok || status != model.TaskCancelled {
		t.Errorf("status = %v (ok=%v), want cancelled", status, ok)
	}
}

func TestLooksLikeStreamInterruption(t *testing.T) {
	tests := []struct {
		stderr string
		want   bool
	}{
		{"Stream ended", true},
		{"connection reset by peer", true},
		{"received interrupt signal", true},
		{"unexpected token in JSON", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeStreamInterruption(tt.stderr); got != tt.want {
			t.Errorf("looksLikeStreamInterruption(%q) = %v, want %v", tt.stderr, got, tt.want)
		}
	}
}
