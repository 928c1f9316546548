package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	tl, err := Parse([]byte(`{
		"version": 2,
		"resolution": {"width": 1920, "height": 1080},
		"scenes": [
			{"id": "s1", "assetId": "a1", "inSec": 0, "outSec": 3}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, 30, tl.FPS)
	assert.Equal(t, SceneKindVideo, tl.Scenes[0].Kind)
	assert.Equal(t, CropModeCover, tl.Scenes[0].CropMode)
	assert.Equal(t, TransitionNone, tl.Scenes[0].TransitionOut)
	assert.Equal(t, 3.0, tl.Scenes[0].DurationSec)
	assert.Equal(t, CodecH264, tl.Export.Codec)
	assert.Equal(t, 128, tl.Export.AudioKbps)
}

func TestParseTransitionDefaultDuration(t *testing.T) {
	tl, err := Parse([]byte(`{
		"resolution": {"width": 1280, "height": 720},
		"scenes": [
			{"id": "s1", "assetId": "a1", "outSec": 3, "transitionOut": "fade"},
			{"id": "s2", "assetId": "a2", "outSec": 3}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, TransitionFade, tl.Scenes[0].TransitionOut)
	assert.Equal(t, 0.5, tl.Scenes[0].TransitionDurationSec)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"no scenes", `{"resolution": {"width": 1280, "height": 720}, "scenes": []}`, "no scenes"},
		{"no resolution", `{"scenes": [{"id": "s1", "outSec": 3}]}`, "no output resolution"},
		{"out before in", `{"resolution": {"width": 1280, "height": 720}, "scenes": [{"id": "s1", "inSec": 5, "outSec": 3}]}`, "outSec must be >= inSec"},
		{"unknown kind", `{"resolution": {"width": 1280, "height": 720}, "scenes": [{"id": "s1", "kind": "hologram", "outSec": 3}]}`, "unknown kind"},
		{"unknown crop mode", `{"resolution": {"width": 1280, "height": 720}, "scenes": [{"id": "s1", "outSec": 3, "cropMode": "stretch"}]}`, "unknown crop mode"},
		{"no duration", `{"resolution": {"width": 1280, "height": 720}, "scenes": [{"id": "s1"}]}`, "no duration"},
		{"unknown codec", `{"resolution": {"width": 1280, "height": 720}, "scenes": [{"id": "s1", "outSec": 3}], "export": {"codec": "av2"}}`, "unknown codec"},
		{"not json", `{scenes`, "decoding timeline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseMusicNormalization(t *testing.T) {
	// Music with neither asset nor URL is dropped entirely.
	tl, err := Parse([]byte(`{
		"resolution": {"width": 1280, "height": 720},
		"scenes": [{"id": "s1", "assetId": "a1", "outSec": 3}],
		"music": {"volume": 0.5}
	}`))
	require.NoError(t, err)
	assert.Nil(t, tl.Music)
	assert.Empty(t, tl.MusicSourceKey())

	// Out-of-range volume falls back to the default.
	tl, err = Parse([]byte(`{
		"resolution": {"width": 1280, "height": 720},
		"scenes": [{"id": "s1", "assetId": "a1", "outSec": 3}],
		"music": {"url": "https://cdn.example.com/track.mp3", "volume": 7}
	}`))
	require.NoError(t, err)
	require.NotNil(t, tl.Music)
	assert.Equal(t, 0.3, tl.Music.Volume)
	assert.Equal(t, MusicKey, tl.MusicSourceKey())

	tl, err = Parse([]byte(`{
		"resolution": {"width": 1280, "height": 720},
		"scenes": [{"id": "s1", "assetId": "a1", "outSec": 3}],
		"music": {"assetId": "track-1", "volume": 0.4}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "track-1", tl.MusicSourceKey())
	assert.Equal(t, 0.4, tl.Music.Volume)
}

func TestParseVoiceoverNormalization(t *testing.T) {
	tl, err := Parse([]byte(`{
		"resolution": {"width": 1280, "height": 720},
		"scenes": [{"id": "s1", "assetId": "a1", "outSec": 3}],
		"voiceover": {"assetId": "", "volume": 0.8}
	}`))
	require.NoError(t, err)
	assert.Nil(t, tl.Voiceover)
	assert.Zero(t, tl.VoiceoverOffsetSec())

	tl, err = Parse([]byte(`{
		"resolution": {"width": 1280, "height": 720},
		"scenes": [{"id": "s1", "assetId": "a1", "outSec": 3}],
		"voiceover": {"assetId": "vo-1", "volume": -1, "startOffsetSec": 1.5}
	}`))
	require.NoError(t, err)
	require.NotNil(t, tl.Voiceover)
	assert.Equal(t, 1.0, tl.Voiceover.Volume)
	assert.Equal(t, 1.5, tl.VoiceoverOffsetSec())
}

func TestParseBrandNormalization(t *testing.T) {
	tl, err := Parse([]byte(`{
		"resolution": {"width": 1280, "height": 720},
		"scenes": [{"id": "s1", "assetId": "a1", "outSec": 3}],
		"brand": {"corner": "top-right"}
	}`))
	require.NoError(t, err)
	assert.Nil(t, tl.Brand, "brand without a logo asset is dropped")

	tl, err = Parse([]byte(`{
		"resolution": {"width": 1280, "height": 720},
		"scenes": [{"id": "s1", "assetId": "a1", "outSec": 3}],
		"brand": {"logoAssetId": "logo-1", "corner": "center"}
	}`))
	require.NoError(t, err)
	require.NotNil(t, tl.Brand)
	assert.Equal(t, CornerBottomRight, tl.Brand.Corner)
	assert.Equal(t, 120, tl.Brand.SizePx)
}

func TestSceneSourceKey(t *testing.T) {
	s := Scene{AssetID: "a1", ClipID: "c1", ClipURL: "https://example.com/clip.mp4"}
	assert.Equal(t, "a1", s.SourceKey())

	s.AssetID = ""
	assert.Equal(t, "c1", s.SourceKey())

	s.ClipID = ""
	assert.Equal(t, "https://example.com/clip.mp4", s.SourceKey())

	assert.True(t, s.HasSource())
	s.ClipURL = ""
	assert.False(t, s.HasSource())
}

func TestSceneTrimmedDuration(t *testing.T) {
	s := Scene{InSec: 1, OutSec: 4}
	assert.Equal(t, 3.0, s.TrimmedDuration())

	s = Scene{InSec: 4, OutSec: 1}
	assert.Zero(t, s.TrimmedDuration())
}

func TestHasTalkingHead(t *testing.T) {
	tl := &Timeline{Scenes: []Scene{{}, {IsTalkingHead: true}}}
	assert.True(t, tl.HasTalkingHead())

	tl = &Timeline{Scenes: []Scene{{}, {}}}
	assert.False(t, tl.HasTalkingHead())
}

func TestTransitionIsSupported(t *testing.T) {
	assert.True(t, TransitionFade.IsSupported())
	assert.True(t, TransitionCircleOpen.IsSupported())
	assert.False(t, TransitionNone.IsSupported())
	assert.False(t, Transition("starwipe").IsSupported())
}
