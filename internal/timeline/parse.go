package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Parse errors.
var (
	// ErrNoScenes indicates the timeline has no scenes to render.
	ErrNoScenes = errors.New("timeline has no scenes")
	// ErrNoResolution indicates the timeline declares no output resolution.
	ErrNoResolution = errors.New("timeline has no output resolution")
)

// Default values applied during parsing.
const (
	defaultFPS         = 30
	defaultMusicVolume = 0.3
	defaultAudioVolume = 1.0
	defaultAudioKbps   = 128
	defaultLogoSizePx  = 120
)

// Parse decodes and validates a timeline document. Unknown JSON fields are
// ignored; missing optional values receive defaults. The returned timeline
// is safe to hand to the compiler without further checking.
func Parse(data []byte) (*Timeline, error) {
	var t Timeline
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding timeline: %w", err)
	}
	if err := t.Normalize(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Normalize validates the document and fills defaults in place.
func (t *Timeline) Normalize() error {
	if len(t.Scenes) == 0 {
		return ErrNoScenes
	}
	if t.Resolution.Width <= 0 || t.Resolution.Height <= 0 {
		return ErrNoResolution
	}
	if t.FPS <= 0 {
		t.FPS = defaultFPS
	}

	for i := range t.Scenes {
		s := &t.Scenes[i]
		if s.Kind == "" {
			s.Kind = SceneKindVideo
		}
		if s.Kind != SceneKindVideo && s.Kind != SceneKindImage {
			return ErrValidation{Field: fmt.Sprintf("scenes[%d].kind", i), Message: fmt.Sprintf("unknown kind %q", s.Kind)}
		}
		if s.OutSec < s.InSec {
			return ErrValidation{Field: fmt.Sprintf("scenes[%d]", i), Message: "outSec must be >= inSec"}
		}
		if s.DurationSec <= 0 {
			s.DurationSec = s.TrimmedDuration()
		}
		if s.DurationSec <= 0 {
			return ErrValidation{Field: fmt.Sprintf("scenes[%d].durationSec", i), Message: "scene has no duration"}
		}
		switch s.CropMode {
		case "":
			s.CropMode = CropModeCover
		case CropModeCover, CropModeContain, CropModeFill:
		default:
			return ErrValidation{Field: fmt.Sprintf("scenes[%d].cropMode", i), Message: fmt.Sprintf("unknown crop mode %q", s.CropMode)}
		}
		if s.TransitionOut == "" {
			s.TransitionOut = TransitionNone
		}
		if s.TransitionOut != TransitionNone && s.TransitionDurationSec <= 0 {
			s.TransitionDurationSec = 0.5
		}
	}

	if t.Music != nil {
		if t.Music.AssetID == "" && t.Music.URL == "" {
			t.Music = nil
		} else if t.Music.Volume <= 0 || t.Music.Volume > 1 {
			t.Music.Volume = defaultMusicVolume
		}
	}
	if t.Voiceover != nil {
		if t.Voiceover.AssetID == "" {
			t.Voiceover = nil
		} else if t.Voiceover.Volume <= 0 || t.Voiceover.Volume > 1 {
			t.Voiceover.Volume = defaultAudioVolume
		}
	}
	for i := range t.AudioTracks {
		if t.AudioTracks[i].Volume <= 0 || t.AudioTracks[i].Volume > 1 {
			t.AudioTracks[i].Volume = defaultAudioVolume
		}
	}
	for i := range t.SoundEffects {
		if t.SoundEffects[i].Volume <= 0 || t.SoundEffects[i].Volume > 1 {
			t.SoundEffects[i].Volume = defaultAudioVolume
		}
	}
	for i := range t.ImageOverlays {
		if t.ImageOverlays[i].Scale <= 0 {
			t.ImageOverlays[i].Scale = 1
		}
	}

	if t.Brand != nil {
		if t.Brand.LogoAssetID == "" {
			t.Brand = nil
		} else {
			switch t.Brand.Corner {
			case CornerTopLeft, CornerTopRight, CornerBottomLeft, CornerBottomRight:
			default:
				t.Brand.Corner = CornerBottomRight
			}
			if t.Brand.SizePx <= 0 {
				t.Brand.SizePx = defaultLogoSizePx
			}
		}
	}

	switch t.Export.Codec {
	case "":
		t.Export.Codec = CodecH264
	case CodecH264, CodecH265:
	default:
		return ErrValidation{Field: "export.codec", Message: fmt.Sprintf("unknown codec %q", t.Export.Codec)}
	}
	if t.Export.AudioKbps <= 0 {
		t.Export.AudioKbps = defaultAudioKbps
	}

	return nil
}

// ErrValidation is a timeline validation error naming the offending field.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("invalid timeline field %s: %s", e.Field, e.Message)
}
