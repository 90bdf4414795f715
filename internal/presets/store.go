// SPDX-License-Identifier: MIT

// Package presets implements the JSON file-backed preset store
// (scheduled_presets.json): the host-visible set of monitoring presets
// that the detectors and trigger pipeline read from and a detector's
// auto-disable path writes to.
package presets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidwatch/livecap/internal/config"
	"github.com/corvidwatch/livecap/internal/lock"
	"github.com/corvidwatch/livecap/internal/model"
)

// Store is a JSON file-backed set of Presets, safe for concurrent use. It
// implements every narrow interface the detection/trigger/recorder layers
// depend on (trigger.PresetFinder, twitch.PresetSource,
// youtube.PresetSource, youtube.PresetDisabler, recorder.PresetResolver) so
// the engine can wire a single Store into all of them.
type Store struct {
	path string
	mu   sync.RWMutex
	byID map[string]model.Preset
}

// Open loads a Store from path, creating an empty preset set if the file
// does not yet exist. A parse failure on an existing file is returned rather
// than silently discarding it.
func Open(path string) (*Store, error) {
	s := &Store{path: path, byID: make(map[string]model.Preset)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("presets: failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var list []model.Preset
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("presets: failed to parse %s: %w", path, err)
	}
	for _, p := range list {
		s.byID[p.ID] = p
	}
	return s, nil
}

// save writes the current preset set to s.path (used as given; no "~"
// expansion) under the file lock. It overwrites the file directly rather
// than writing and renaming; marshalling happens first, so a marshal error
// leaves the existing file untouched.
func (s *Store) save() error {
	list := make([]model.Preset, 0, len(s.byID))
	for _, p := range s.byID {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("presets: failed to marshal: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("presets: failed to create directory: %w", err)
		}
	}

	lockPath := s.path + ".lock"
	fl, err := lock.NewFileLock(lockPath)
	if err != nil {
		return fmt.Errorf("presets: failed to create lock: %w", err)
	}
	if err := fl.Acquire(lock.DefaultAcquireTimeout); err != nil {
		return fmt.Errorf("presets: failed to acquire lock: %w", err)
	}
	defer func() { _ = fl.Release() }()

	// #nosec G306 -- preset file is host-readable configuration, not a secret
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("presets: failed to write %s: %w", s.path, err)
	}
	return nil
}

// All returns a snapshot of every preset, regardless of Enabled.
func (s *Store) All() []model.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Preset, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Preset returns the preset with the given id. Implements
// internal/recorder.PresetResolver.
func (s *Store) Preset(id string) (model.Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return model.Preset{}, false
	}
	return p.Clone(), true
}

// FindEnabled returns the enabled preset matching platform and channelID,
// if any. Implements internal/trigger.PresetFinder.
func (s *Store) FindEnabled(platform model.Platform, channelID string) (model.Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if p.Enabled && p.Platform == platform && p.ChannelID == channelID {
			return p.Clone(), true
		}
	}
	return model.Preset{}, false
}

// RecordTrigger increments trigger_count and sets last_triggered_at for
// the named preset, persisting the change. Implements
// internal/trigger.PresetFinder.
func (s *Store) RecordTrigger(presetID string, at time.Time) error {
	s.mu.Lock()
	p, ok := s.byID[presetID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("presets: unknown preset %q", presetID)
	}
	p.TriggerCount++
	p.LastTriggeredAt = &at
	s.byID[presetID] = p
	s.mu.Unlock()

	return s.save()
}

// SetEnabled toggles a preset's enabled flag and persists the change.
// Implements internal/youtube.PresetDisabler.
func (s *Store) SetEnabled(presetID string, enabled bool) error {
	s.mu.Lock()
	p, ok := s.byID[presetID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("presets: unknown preset %q", presetID)
	}
	p.Enabled = enabled
	s.byID[presetID] = p
	s.mu.Unlock()

	return s.save()
}

// EnabledTwitchPresets returns every enabled platform=twitch preset.
// Implements internal/twitch.PresetSource.
func (s *Store) EnabledTwitchPresets() []model.Preset {
	return s.enabledByPlatform(model.PlatformTwitch)
}

// EnabledYouTubePresets returns every enabled platform=youtube preset.
// Implements internal/youtube.PresetSource.
func (s *Store) EnabledYouTubePresets() []model.Preset {
	return s.enabledByPlatform(model.PlatformYouTube)
}

func (s *Store) enabledByPlatform(platform model.Platform) []model.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Preset
	for _, p := range s.byID {
		if p.Enabled && p.Platform == platform {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Add validates and appends a new preset (id and created_at are assigned
// here), persisting the result.
func (s *Store) Add(p model.Preset) (model.Preset, error) {
	if err := validate(p); err != nil {
		return model.Preset{}, err
	}

	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	p.OutputDir = expandHome(p.OutputDir)
	if p.FilenameTemplate == "" {
		p.FilenameTemplate = model.DefaultFilenameTemplate
	}

	s.mu.Lock()
	for _, existing := range s.byID {
		if existing.Platform == p.Platform && existing.ChannelID == p.ChannelID {
			s.mu.Unlock()
			return model.Preset{}, fmt.Errorf("presets: a preset for %s/%s already exists", p.Platform, p.ChannelID)
		}
	}
	s.byID[p.ID] = p
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return model.Preset{}, err
	}
	return p, nil
}

// Remove deletes the preset with the given id, persisting the result.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("presets: unknown preset %q", id)
	}
	delete(s.byID, id)
	s.mu.Unlock()

	return s.save()
}

func validate(p model.Preset) error {
	if p.ChannelID == "" {
		return fmt.Errorf("presets: channel_id is required")
	}
	if p.ChannelName == "" {
		return fmt.Errorf("presets: channel_name is required")
	}
	if p.Platform != model.PlatformYouTube && p.Platform != model.PlatformTwitch {
		return fmt.Errorf("presets: platform must be youtube or twitch")
	}
	if p.OutputDir == "" {
		return fmt.Errorf("presets: output_dir is required")
	}
	switch p.Quality {
	case model.QualityBest, model.Quality1080, model.Quality720, model.Quality480, model.Quality360, "":
	default:
		return fmt.Errorf("presets: invalid quality %q", p.Quality)
	}
	switch p.ContentType {
	case model.ContentVideoAudio, model.ContentAudioOnly, "":
	default:
		return fmt.Errorf("presets: invalid content_type %q", p.ContentType)
	}
	switch p.ContainerFormat {
	case model.ContainerAuto, model.ContainerMP4, model.ContainerMKV, "":
	default:
		return fmt.Errorf("presets: invalid container_format %q", p.ContainerFormat)
	}
	return nil
}

// expandHome expands a leading "~" using HOME (POSIX) or USERPROFILE
// (Windows).
func expandHome(dir string) string {
	if !strings.HasPrefix(dir, "~") {
		return dir
	}
	home := os.Getenv("HOME")
	if home == "" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		return dir
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~"))
}

// DefaultPath resolves cfg's configured presets file relative to its
// directory, so a relative presets_file setting stays portable across hosts.
func DefaultPath(cfg *config.Config, configDir string) string {
	if filepath.IsAbs(cfg.PresetsFile) {
		return cfg.PresetsFile
	}
	return filepath.Join(configDir, cfg.PresetsFile)
}
