// SPDX-License-Identifier: MIT

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/corvidwatch/livecap/internal/model"
)

// MigrateLegacyPresets migrates a flat key=value preset file (the format
// used before the structured JSON preset store existed) into a []model.Preset
// the current internal/presets store can save.
//
// The legacy format mirrors a shell-sourced env file, one line per field:
//
//	CHANNEL_blue_alpha_ID=123456
//	CHANNEL_blue_alpha_NAME=alpha
//	CHANNEL_blue_alpha_PLATFORM=twitch
//	CHANNEL_blue_alpha_QUALITY=best
//	CHANNEL_blue_alpha_OUTPUT_DIR=/data/captures
//	CHANNEL_blue_alpha_ENABLED=true
//
// Parameters:
//   - legacyPath: path to the legacy key=value preset file
//
// Returns:
//   - []model.Preset: migrated presets, one per distinct key suffix
//   - error: if the file cannot be read or a field value is malformed
func MigrateLegacyPresets(legacyPath string) ([]model.Preset, error) {
	f, err := os.Open(legacyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy preset file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries := make(map[string]*model.Preset)
	order := make([]string, 0)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		field, name, value, ok := parseLegacyPresetLine(line)
		if !ok {
			continue
		}

		p, exists := entries[name]
		if !exists {
			p = &model.Preset{
				ID:          name,
				ChannelName: name,
				CreatedAt:   time.Now(),
			}
			entries[name] = p
			order = append(order, name)
		}

		if err := applyLegacyPresetField(p, field, value); err != nil {
			return nil, fmt.Errorf("invalid value for %s_%s: %w", name, field, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading legacy preset file: %w", err)
	}

	presets := make([]model.Preset, 0, len(order))
	for _, name := range order {
		presets = append(presets, *entries[name])
	}
	return presets, nil
}

// parseLegacyPresetLine parses one CHANNEL_<name>_<FIELD>=value line.
//
// Returns field ("ID", "NAME", "PLATFORM", ...), name ("blue_alpha"),
// value (unquoted), and ok.
func parseLegacyPresetLine(line string) (field, name, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	line = strings.TrimSpace(line)

	if !strings.HasPrefix(line, "CHANNEL_") {
		return "", "", "", false
	}

	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return "", "", "", false
	}

	key := strings.TrimPrefix(strings.TrimSpace(parts[0]), "CHANNEL_")
	value = strings.Trim(strings.TrimSpace(parts[1]), `"'`)

	knownFields := []string{
		"_ID", "_NAME", "_PLATFORM", "_QUALITY", "_CONTENT_TYPE",
		"_OUTPUT_DIR", "_FILENAME_TEMPLATE", "_CONTAINER_FORMAT", "_ENABLED",
	}
	for _, suffix := range knownFields {
		if strings.HasSuffix(key, suffix) {
			name = strings.TrimSuffix(key, suffix)
			field = strings.TrimPrefix(suffix, "_")
			return field, name, value, true
		}
	}

	return "", "", "", false
}

// applyLegacyPresetField applies a single migrated field to p.
func applyLegacyPresetField(p *model.Preset, field, value string) error {
	switch field {
	case "ID":
		p.ChannelID = value
	case "NAME":
		p.ChannelName = value
	case "PLATFORM":
		switch model.Platform(value) {
		case model.PlatformYouTube, model.PlatformTwitch:
			p.Platform = model.Platform(value)
		default:
			return fmt.Errorf("platform must be youtube or twitch (got %q)", value)
		}
	case "QUALITY":
		p.Quality = model.Quality(value)
	case "CONTENT_TYPE":
		p.ContentType = model.ContentType(value)
	case "OUTPUT_DIR":
		p.OutputDir = value
	case "FILENAME_TEMPLATE":
		p.FilenameTemplate = value
	case "CONTAINER_FORMAT":
		p.ContainerFormat = model.ContainerFormat(value)
	case "ENABLED":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		p.Enabled = enabled
	}
	return nil
}
