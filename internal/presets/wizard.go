// SPDX-License-Identifier: MIT

package presets

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/corvidwatch/livecap/internal/model"
)

// AddInteractive walks the operator through adding a preset with a
// charmbracelet/huh form, then validates and persists it through Store.Add.
// Follows the prompt-then-confirm flow of internal/menu's Input and Confirm
// helpers, as a single multi-field form instead of a sequence of
// single-value prompts.
func AddInteractive(s *Store) (model.Preset, error) {
	var (
		platform    string
		channelID   string
		channelName string
		outputDir   string
		quality     string
		contentType string
		container   string
		template    string
		confirmed   bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Platform").
				Options(
					huh.NewOption("YouTube", string(model.PlatformYouTube)),
					huh.NewOption("Twitch", string(model.PlatformTwitch)),
				).
				Value(&platform),
			huh.NewInput().
				Title("Channel ID").
				Description("YouTube channel ID (UCxxxx) or Twitch login name").
				Value(&channelID).
				Validate(notBlank("channel ID")),
			huh.NewInput().
				Title("Display name").
				Value(&channelName).
				Validate(notBlank("display name")),
			huh.NewInput().
				Title("Output directory").
				Placeholder("~/Videos/captures").
				Value(&outputDir).
				Validate(notBlank("output directory")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Quality").
				Options(
					huh.NewOption("Best available", string(model.QualityBest)),
					huh.NewOption("1080p", string(model.Quality1080)),
					huh.NewOption("720p", string(model.Quality720)),
					huh.NewOption("480p", string(model.Quality480)),
					huh.NewOption("360p", string(model.Quality360)),
				).
				Value(&quality),
			huh.NewSelect[string]().
				Title("Content").
				Options(
					huh.NewOption("Video + audio", string(model.ContentVideoAudio)),
					huh.NewOption("Audio only", string(model.ContentAudioOnly)),
				).
				Value(&contentType),
			huh.NewSelect[string]().
				Title("Container").
				Options(
					huh.NewOption("Auto (no remux)", string(model.ContainerAuto)),
					huh.NewOption("MP4", string(model.ContainerMP4)),
					huh.NewOption("MKV", string(model.ContainerMKV)),
				).
				Value(&container),
			huh.NewInput().
				Title("Filename template").
				Placeholder(model.DefaultFilenameTemplate).
				Value(&template),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this preset?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return model.Preset{}, err
	}
	if !confirmed {
		return model.Preset{}, fmt.Errorf("presets: cancelled by operator")
	}

	p := model.Preset{
		ChannelID:        channelID,
		ChannelName:      channelName,
		Platform:         model.Platform(platform),
		Enabled:          true,
		Quality:          model.Quality(quality),
		ContentType:      model.ContentType(contentType),
		OutputDir:        outputDir,
		FilenameTemplate: template,
		ContainerFormat:  model.ContainerFormat(container),
	}
	return s.Add(p)
}

func notBlank(field string) func(string) error {
	return func(v string) error {
		if v == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
