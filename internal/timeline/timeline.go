// Package timeline defines the declarative timeline document consumed by the
// render worker. The document arrives as loosely typed JSON authored by the
// web application; Parse validates it once at ingress so the compiler can
// operate on total types.
package timeline

// Version is the current timeline document version.
const Version = 2

// SceneKind identifies the visual source type of a scene.
type SceneKind string

const (
	// SceneKindVideo is a trimmed video clip.
	SceneKindVideo SceneKind = "video"
	// SceneKindImage is a still image looped for the scene duration.
	SceneKindImage SceneKind = "image"
)

// CropMode is the aspect-fit policy applied to a scene source.
type CropMode string

const (
	// CropModeCover scales up and center-crops to fill the frame.
	CropModeCover CropMode = "cover"
	// CropModeContain scales down and letterboxes with black.
	CropModeContain CropMode = "contain"
	// CropModeFill stretches to the frame ignoring aspect ratio.
	CropModeFill CropMode = "fill"
)

// Transition names a scene-out transition. Only names in the allow-list are
// honored; unknown names degrade to a plain concat.
type Transition string

const (
	TransitionNone       Transition = "none"
	TransitionFade       Transition = "fade"
	TransitionFadeBlack  Transition = "fadeblack"
	TransitionFadeWhite  Transition = "fadewhite"
	TransitionWipeLeft   Transition = "wipeleft"
	TransitionWipeRight  Transition = "wiperight"
	TransitionSlideLeft  Transition = "slideleft"
	TransitionSlideRight Transition = "slideright"
	TransitionDissolve   Transition = "dissolve"
	TransitionCircleOpen Transition = "circleopen"
	TransitionRadial     Transition = "radial"
)

// IsSupported reports whether the transition is on the allow-list.
func (t Transition) IsSupported() bool {
	switch t {
	case TransitionFade, TransitionFadeBlack, TransitionFadeWhite,
		TransitionWipeLeft, TransitionWipeRight,
		TransitionSlideLeft, TransitionSlideRight,
		TransitionDissolve, TransitionCircleOpen, TransitionRadial:
		return true
	}
	return false
}

// Codec is the export video codec.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
)

// Corner positions the brand logo.
type Corner string

const (
	CornerTopLeft     Corner = "top-left"
	CornerTopRight    Corner = "top-right"
	CornerBottomLeft  Corner = "bottom-left"
	CornerBottomRight Corner = "bottom-right"
)

// Resolution is the output frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TextStyle holds the presentation attributes of a text overlay.
type TextStyle struct {
	// FontSize is a relative size on a 1-10 scale; the compiler maps it to
	// pixels as (fontSize/10) * (height/10).
	FontSize float64 `json:"fontSize"`
	// Color is a hex color like "#ffffff".
	Color string `json:"color"`
	// Shadow enables a 2px black drop shadow at 70% alpha.
	Shadow bool `json:"shadow"`
}

// TextOverlay is a timed text element. X/Y are center-relative percentages
// of the frame in [0,100].
type TextOverlay struct {
	Text        string    `json:"text"`
	Style       TextStyle `json:"style"`
	StartSec    float64   `json:"startSec"`
	DurationSec float64   `json:"durationSec"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
}

// ImageOverlay is a timed image element. X/Y position the overlay's center
// as percentages of the frame in [0,100].
type ImageOverlay struct {
	AssetID     string  `json:"assetId"`
	StartSec    float64 `json:"startSec"`
	DurationSec float64 `json:"durationSec"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Scale       float64 `json:"scale"`
	IsGIF       bool    `json:"isGif"`
}

// CaptionSegment is one timed caption line.
type CaptionSegment struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// Captions holds the caption track and its burn-in flag.
type Captions struct {
	Enabled  bool             `json:"enabled"`
	BurnIn   bool             `json:"burnIn"`
	Segments []CaptionSegment `json:"segments"`
}

// Music is the optional global background music track.
type Music struct {
	// AssetID references a user-owned audio asset. When empty, URL is used
	// and the fetcher keys the download under the "music" sentinel.
	AssetID string  `json:"assetId,omitempty"`
	URL     string  `json:"url,omitempty"`
	Volume  float64 `json:"volume"`
}

// Voiceover is the optional synthesized narration track.
type Voiceover struct {
	AssetID        string  `json:"assetId"`
	Volume         float64 `json:"volume"`
	StartOffsetSec float64 `json:"startOffsetSec"`
}

// AudioTrack is one continuous talking-head audio branch with a start offset.
type AudioTrack struct {
	AssetID        string  `json:"assetId"`
	StartOffsetSec float64 `json:"startOffsetSec"`
	Volume         float64 `json:"volume"`
}

// SoundEffect is a one-shot audio element at an absolute time.
type SoundEffect struct {
	AssetID   string  `json:"assetId"`
	AtTimeSec float64 `json:"atTimeSec"`
	Volume    float64 `json:"volume"`
}

// Brand holds the optional corner logo.
type Brand struct {
	LogoAssetID string `json:"logoAssetId,omitempty"`
	Corner      Corner `json:"corner"`
	SizePx      int    `json:"sizePx"`
}

// Export holds encoding settings for the output file.
type Export struct {
	Codec Codec `json:"codec"`
	// BitrateMbps is used when CRF is zero.
	BitrateMbps float64 `json:"bitrateMbps,omitempty"`
	// CRF takes precedence over BitrateMbps when non-zero.
	CRF       int `json:"crf,omitempty"`
	AudioKbps int `json:"audioKbps"`
}

// Rendering carries hints from the upstream scene selector.
type Rendering struct {
	// VoiceoverDurationSec is the declared narration length. When it exceeds
	// the visual duration the compiler appends a freeze-frame pad.
	VoiceoverDurationSec float64 `json:"voiceoverDurationSec,omitempty"`
}

// Scene is one ordered visual segment of the timeline.
type Scene struct {
	ID string `json:"id"`

	// AssetID references a user-owned asset; ClipURL/ClipID reference a
	// public B-roll clip. Exactly one of AssetID or ClipURL is set for
	// scenes with visual sources; both empty synthesizes black frames.
	AssetID string `json:"assetId,omitempty"`
	ClipURL string `json:"clipUrl,omitempty"`
	ClipID  string `json:"clipId,omitempty"`

	Kind SceneKind `json:"kind"`

	// InSec/OutSec trim the source; OutSec >= InSec.
	InSec  float64 `json:"inSec"`
	OutSec float64 `json:"outSec"`

	// DurationSec is the rendered length. For videos it may exceed
	// OutSec-InSec, in which case the last frame is held.
	DurationSec float64 `json:"durationSec"`

	CropMode CropMode `json:"cropMode,omitempty"`

	// Text is an optional overlay scoped to this scene.
	Text *TextOverlay `json:"text,omitempty"`

	TransitionOut         Transition `json:"transitionOut,omitempty"`
	TransitionDurationSec float64    `json:"transitionDurationSec,omitempty"`

	// IsTalkingHead marks scenes whose own audio carries the narration.
	IsTalkingHead bool `json:"isTalkingHead,omitempty"`

	// IsGIF marks animated GIF sources that must loop at read time.
	IsGIF bool `json:"isGif,omitempty"`
}

// SourceKey returns the identifier under which the scene's downloaded file
// is stored in the asset path map.
func (s *Scene) SourceKey() string {
	if s.AssetID != "" {
		return s.AssetID
	}
	if s.ClipID != "" {
		return s.ClipID
	}
	return s.ClipURL
}

// HasSource reports whether the scene references any visual source.
func (s *Scene) HasSource() bool {
	return s.AssetID != "" || s.ClipURL != ""
}

// TrimmedDuration returns OutSec-InSec clamped at zero.
func (s *Scene) TrimmedDuration() float64 {
	d := s.OutSec - s.InSec
	if d < 0 {
		return 0
	}
	return d
}

// Timeline is the versioned declarative document describing one render.
type Timeline struct {
	Version    int        `json:"version"`
	Resolution Resolution `json:"resolution"`
	FPS        int        `json:"fps"`

	Scenes []Scene `json:"scenes"`

	Music         *Music         `json:"music,omitempty"`
	Voiceover     *Voiceover     `json:"voiceover,omitempty"`
	AudioTracks   []AudioTrack   `json:"audioTracks,omitempty"`
	SoundEffects  []SoundEffect  `json:"soundEffects,omitempty"`
	ImageOverlays []ImageOverlay `json:"imageOverlays,omitempty"`
	TextOverlays  []TextOverlay  `json:"textOverlays,omitempty"`
	Captions      *Captions      `json:"captions,omitempty"`
	Brand         *Brand         `json:"brand,omitempty"`
	Export        Export         `json:"export"`
	Rendering     *Rendering     `json:"rendering,omitempty"`
}

// MusicKey is the sentinel path-map key for global music referenced by URL
// rather than asset ID.
const MusicKey = "music"

// MusicSourceKey returns the path-map key for the music track.
func (t *Timeline) MusicSourceKey() string {
	if t.Music == nil {
		return ""
	}
	if t.Music.AssetID != "" {
		return t.Music.AssetID
	}
	return MusicKey
}

// VoiceoverDurationSec returns the declared narration length, or zero.
func (t *Timeline) VoiceoverDurationSec() float64 {
	if t.Rendering == nil {
		return 0
	}
	return t.Rendering.VoiceoverDurationSec
}

// VoiceoverOffsetSec returns the narration start offset, or zero.
func (t *Timeline) VoiceoverOffsetSec() float64 {
	if t.Voiceover == nil {
		return 0
	}
	return t.Voiceover.StartOffsetSec
}

// HasTalkingHead reports whether any scene is flagged as talking-head.
func (t *Timeline) HasTalkingHead() bool {
	for i := range t.Scenes {
		if t.Scenes[i].IsTalkingHead {
			return true
		}
	}
	return false
}
