package ffmpeg

import (
	"fmt"
	"strings"
)

// Compression profile names.
const (
	ProfileAggressive   = "aggressive"
	ProfileBalanced     = "balanced"
	ProfileConservative = "conservative"
	ProfileDynamic      = "dynamic"
)

// Profile is a proxy encode used for analysis uploads.
type Profile struct {
	Name            string
	Width           int
	Height          int
	FPS             int
	VideoBitrateK   int
	AudioBitrateK   int
	AudioSampleRate int
	Preset          string
	CRF             int
}

var profiles = map[string]Profile{
	ProfileAggressive: {
		Name: ProfileAggressive, Width: 854, Height: 480, FPS: 10,
		VideoBitrateK: 500, AudioBitrateK: 64, AudioSampleRate: 22050, Preset: "ultrafast", CRF: 28,
	},
	ProfileBalanced: {
		Name: ProfileBalanced, Width: 1280, Height: 720, FPS: 15,
		VideoBitrateK: 1500, AudioBitrateK: 128, AudioSampleRate: 44100, Preset: "fast", CRF: 23,
	},
	ProfileConservative: {
		Name: ProfileConservative, Width: 1920, Height: 1080, FPS: 24,
		VideoBitrateK: 3000, AudioBitrateK: 192, AudioSampleRate: 44100, Preset: "medium", CRF: 20,
	},
}

// ProfileFor resolves name into a concrete profile. The dynamic profile
// picks by source duration: shorter sources keep more detail.
func ProfileFor(name string, duration float64) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == ProfileDynamic {
		switch {
		case duration < 180:
			name = ProfileConservative
		case duration < 420:
			name = ProfileBalanced
		default:
			name = ProfileAggressive
		}
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown compression profile %q", name)
	}
	return p, nil
}

// Output quality names accepted in job options.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
	QualitySource = "source"
)

// OutputSettings control how segments are rendered into the artifact.
// Copy keeps source streams untouched; the other fields are ignored then.
type OutputSettings struct {
	Copy   bool
	Width  int
	Height int
	FPS    int
	CRF    int
	Preset string
}

var outputSettings = map[string]OutputSettings{
	QualityLow:    {Width: 854, Height: 480, FPS: 30, CRF: 28, Preset: "veryfast"},
	QualityMedium: {Width: 1280, Height: 720, FPS: 30, CRF: 23, Preset: "fast"},
	QualityHigh:   {Width: 1920, Height: 1080, FPS: 30, CRF: 18, Preset: "medium"},
	QualitySource: {Copy: true},
}

// SettingsFor maps an output quality onto render settings. Unknown or empty
// names fall back to medium.
func SettingsFor(quality string) OutputSettings {
	if s, ok := outputSettings[strings.ToLower(strings.TrimSpace(quality))]; ok {
		return s
	}
	return outputSettings[QualityMedium]
}
