package compiler

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/timeline"
)

// buildAudio assembles the audio graph and returns the final audio label,
// or "" when the timeline has no audio at all.
//
// Branches: looped background music, then either the voiceover or the
// talking-head audio (mutually exclusive), then one branch per sound effect.
// The final amix uses unit weights and normalize=0 so authored volume levels
// survive the mix; auto-normalization would flatten them.
func (c *compilation) buildAudio(totalDur float64) (string, error) {
	var branches []string

	if label, err := c.buildMusic(totalDur); err != nil {
		return "", err
	} else if label != "" {
		branches = append(branches, label)
	}

	if c.t.Voiceover != nil {
		label, err := c.buildVoiceover()
		if err != nil {
			return "", err
		}
		branches = append(branches, label)
	} else if label, err := c.buildTalkingHead(); err != nil {
		return "", err
	} else if label != "" {
		branches = append(branches, label)
	}

	for i := range c.t.SoundEffects {
		label, err := c.buildSoundEffect(&c.t.SoundEffects[i])
		if err != nil {
			return "", err
		}
		branches = append(branches, label)
	}

	switch len(branches) {
	case 0:
		return "", nil
	case 1:
		return branches[0], nil
	}

	weights := strings.TrimSpace(strings.Repeat("1 ", len(branches)))
	out := c.g.label("amix")
	c.g.add(fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=2:weights='%s':normalize=0",
		len(branches), weights), branches, out)
	return out, nil
}

// buildMusic emits the looped, trimmed, volume-scaled music branch.
func (c *compilation) buildMusic(totalDur float64) (string, error) {
	m := c.t.Music
	if m == nil {
		return "", nil
	}
	path, err := c.assetPath(c.t.MusicSourceKey())
	if err != nil {
		return "", err
	}
	idx := c.inputIndex(path, Input{StreamLoop: true})
	out := c.g.label("am")
	c.g.add(fmt.Sprintf("atrim=duration=%s,asetpts=PTS-STARTPTS,volume=%s", ftoa(totalDur), ftoa(m.Volume)),
		[]string{itoa(idx) + ":a"}, out)
	return out, nil
}

// buildVoiceover emits the narration branch, head-padded with silence when a
// start offset is declared.
func (c *compilation) buildVoiceover() (string, error) {
	vo := c.t.Voiceover
	path, err := c.assetPath(vo.AssetID)
	if err != nil {
		return "", err
	}
	idx := c.inputIndex(path, Input{})

	filter := fmt.Sprintf("volume=%s", ftoa(vo.Volume))
	if vo.StartOffsetSec > 0 {
		filter = fmt.Sprintf("adelay=%d:all=1,", int(vo.StartOffsetSec*1000)) + filter
	}
	out := c.g.label("avo")
	c.g.add(filter, []string{itoa(idx) + ":a"}, out)
	return out, nil
}

// buildTalkingHead emits the continuous user-audio branch. Declared audio
// tracks are delayed and mixed; without declared tracks, the audio of each
// talking-head scene is extracted and concatenated.
func (c *compilation) buildTalkingHead() (string, error) {
	if len(c.t.AudioTracks) > 0 {
		var parts []string
		for i := range c.t.AudioTracks {
			tr := &c.t.AudioTracks[i]
			path, err := c.assetPath(tr.AssetID)
			if err != nil {
				return "", err
			}
			idx := c.inputIndex(path, Input{})
			label := c.g.label("at")
			c.g.add(fmt.Sprintf("adelay=%d:all=1,volume=%s", int(tr.StartOffsetSec*1000), ftoa(tr.Volume)),
				[]string{itoa(idx) + ":a"}, label)
			parts = append(parts, label)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		out := c.g.label("ath")
		c.g.add(fmt.Sprintf("amix=inputs=%d:duration=longest:normalize=0", len(parts)), parts, out)
		return out, nil
	}

	// Fallback: concatenate the audio of scenes flagged as talking-head.
	var parts []string
	for i := range c.t.Scenes {
		s := &c.t.Scenes[i]
		if !s.IsTalkingHead || !s.HasSource() {
			continue
		}
		path, err := c.assetPath(s.SourceKey())
		if err != nil {
			return "", err
		}
		idx := c.inputIndex(path, Input{})
		label := c.g.label("as")
		c.g.add(fmt.Sprintf("atrim=start=%s:end=%s,asetpts=PTS-STARTPTS", ftoa(s.InSec), ftoa(s.OutSec)),
			[]string{itoa(idx) + ":a"}, label)
		parts = append(parts, label)
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	}
	out := c.g.label("ath")
	c.g.add(fmt.Sprintf("concat=n=%d:v=0:a=1", len(parts)), parts, out)
	return out, nil
}

// buildSoundEffect emits one delayed, volume-scaled effect branch.
func (c *compilation) buildSoundEffect(fx *timeline.SoundEffect) (string, error) {
	path, err := c.assetPath(fx.AssetID)
	if err != nil {
		return "", err
	}
	idx := c.inputIndex(path, Input{})
	out := c.g.label("afx")
	c.g.add(fmt.Sprintf("adelay=%d:all=1,volume=%s", int(fx.AtTimeSec*1000), ftoa(fx.Volume)),
		[]string{itoa(idx) + ":a"}, out)
	return out, nil
}
