package compiler

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/clipforge/clipforge/internal/timeline"
)

// Compile errors.
var (
	// ErrNoScenes indicates the timeline has no scenes.
	ErrNoScenes = errors.New("timeline has no scenes")
)

// ErrMissingAsset indicates a referenced asset has no downloaded file in the
// path map.
type ErrMissingAsset struct {
	Key string
}

// Error implements the error interface.
func (e ErrMissingAsset) Error() string {
	return fmt.Sprintf("no local file for asset %q", e.Key)
}

// Input is one -i entry for the engine, in first-reference order.
type Input struct {
	// Path is the absolute local file path.
	Path string
	// IgnoreLoop tells the GIF demuxer to loop the animation at read time.
	IgnoreLoop bool
	// StreamLoop loops the whole input indefinitely (background music).
	StreamLoop bool
}

// Result is the compiled engine invocation.
type Result struct {
	// Inputs are the ordered, deduplicated input files.
	Inputs []Input
	// FilterGraph is the single filter_complex string.
	FilterGraph string
	// Args is the complete engine argument list (inputs, filter, maps,
	// codec flags, output path).
	Args []string
	// VideoLabel and AudioLabel are the final mapped graph labels.
	VideoLabel string
	AudioLabel string
	// DurationSec is the expected output duration.
	DurationSec float64
	// Warnings are non-fatal degradations (dropped captions, unknown
	// transitions). The caller decides how to surface them.
	Warnings []string
}

// freezePadSlack is the tolerance before a freeze-frame pad is emitted.
const freezePadSlack = 0.1

// voiceoverSlack is the safety buffer applied when narration outruns video.
const voiceoverSlack = 0.5

// logoMarginPx is the fixed margin between the brand logo and frame edges.
const logoMarginPx = 30

// compilation carries state threaded through one Compile call.
type compilation struct {
	t      *timeline.Timeline
	paths  map[string]string
	g      graph
	inputs []Input
	index  map[string]int // path -> input index
	warns  []string
}

// Compile translates the timeline into a single engine invocation writing to
// outputPath. paths maps asset/clip identifiers (or the music sentinel) to
// local files downloaded by the asset fetcher.
func Compile(t *timeline.Timeline, paths map[string]string, outputPath string) (*Result, error) {
	if len(t.Scenes) == 0 {
		return nil, ErrNoScenes
	}

	c := &compilation{
		t:     t,
		paths: paths,
		index: make(map[string]int),
	}

	sceneLabels, err := c.buildScenes()
	if err != nil {
		return nil, err
	}

	videoLabel, visualDur := c.buildTransitions(sceneLabels)

	// Output bound: the longer of the visual chain and the narration end,
	// plus the safety slack. The freeze-frame pad in reconcileDuration
	// extends the video toward this same bound, so the slack is never
	// added twice.
	totalDur := visualDur
	if vo := t.VoiceoverDurationSec() + t.VoiceoverOffsetSec(); vo > totalDur {
		totalDur = vo
	}
	totalDur += voiceoverSlack

	audioLabel, err := c.buildAudio(totalDur)
	if err != nil {
		return nil, err
	}

	videoLabel = c.reconcileDuration(videoLabel, visualDur)
	videoLabel, err = c.buildOverlays(videoLabel)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Inputs:      c.inputs,
		FilterGraph: c.g.String(),
		VideoLabel:  videoLabel,
		AudioLabel:  audioLabel,
		DurationSec: totalDur,
		Warnings:    c.warns,
	}
	res.Args = c.outputArgs(res, totalDur, outputPath)
	return res, nil
}

// inputIndex returns the input index for a local path, adding it on first
// reference. Order matters: the filter graph references inputs by index.
func (c *compilation) inputIndex(path string, opts Input) int {
	if idx, ok := c.index[path]; ok {
		return idx
	}
	opts.Path = path
	idx := len(c.inputs)
	c.inputs = append(c.inputs, opts)
	c.index[path] = idx
	return idx
}

// assetPath resolves a path-map key, failing compilation when absent.
func (c *compilation) assetPath(key string) (string, error) {
	p, ok := c.paths[key]
	if !ok || p == "" {
		return "", ErrMissingAsset{Key: key}
	}
	return p, nil
}

// warnf records a non-fatal degradation.
func (c *compilation) warnf(format string, args ...any) {
	c.warns = append(c.warns, fmt.Sprintf(format, args...))
}

// buildScenes emits one video chain per scene and returns the scene labels.
func (c *compilation) buildScenes() ([]string, error) {
	labels := make([]string, 0, len(c.t.Scenes))
	for i := range c.t.Scenes {
		s := &c.t.Scenes[i]
		label, err := c.buildScene(i, s)
		if err != nil {
			return nil, err
		}
		if s.Text != nil && s.Text.Text != "" {
			out := c.g.label("vt")
			c.g.add(c.drawText(s.Text, false), []string{label}, out)
			label = out
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// buildScene emits the source chain for one scene and returns its label.
func (c *compilation) buildScene(i int, s *timeline.Scene) (string, error) {
	w, h := c.t.Resolution.Width, c.t.Resolution.Height
	fps := c.t.FPS
	out := "v" + itoa(i)

	if !s.HasSource() {
		// No source: synthesize black frames for the scene duration.
		c.g.add(fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%s", w, h, fps, ftoa(s.DurationSec)), nil, out)
		return out, nil
	}

	path, err := c.assetPath(s.SourceKey())
	if err != nil {
		return "", err
	}

	switch {
	case s.Kind == timeline.SceneKindImage:
		idx := c.inputIndex(path, Input{})
		frames := int(math.Ceil(s.DurationSec * float64(fps)))
		filter := fmt.Sprintf("loop=loop=%d:size=1:start=0,%s,fps=%d,setsar=1,trim=duration=%s,setpts=PTS-STARTPTS",
			frames, containFit(w, h), fps, ftoa(s.DurationSec))
		c.g.add(filter, []string{itoa(idx) + ":v"}, out)

	case s.IsGIF:
		idx := c.inputIndex(path, Input{IgnoreLoop: true})
		filter := fmt.Sprintf("trim=start=0:end=%s,setpts=PTS-STARTPTS,%s,fps=%d,setsar=1",
			ftoa(s.DurationSec), coverFit(w, h), fps)
		c.g.add(filter, []string{itoa(idx) + ":v"}, out)

	default:
		idx := c.inputIndex(path, Input{})
		fit := coverFit(w, h)
		if s.CropMode == timeline.CropModeContain && !s.IsTalkingHead {
			fit = containFit(w, h)
		} else if s.CropMode == timeline.CropModeFill {
			fit = fmt.Sprintf("scale=%d:%d", w, h)
		}
		filter := fmt.Sprintf("trim=start=%s:end=%s,setpts=PTS-STARTPTS,%s,fps=%d,setsar=1",
			ftoa(s.InSec), ftoa(s.OutSec), fit, fps)
		if pad := s.DurationSec - s.TrimmedDuration(); pad > freezePadSlack {
			// Hold the last frame to reach the declared scene duration.
			filter += fmt.Sprintf(",tpad=stop_mode=clone:stop_duration=%s", ftoa(pad))
		}
		c.g.add(filter, []string{itoa(idx) + ":v"}, out)
	}
	return out, nil
}

// coverFit scales up and center-crops to exactly w x h. The crop offsets are
// clamped at zero in case the source is smaller than the target.
func coverFit(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d:'max(0,(in_w-%d)/2)':'max(0,(in_h-%d)/2)'",
		w, h, w, h, w, h)
}

// containFit scales down and letterboxes with black to exactly w x h.
func containFit(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
		w, h, w, h)
}

// buildTransitions joins the scene labels into one video stream and returns
// the joined label and total visual duration.
//
// Without transitions a single concat node joins everything. With
// transitions, adjacent pairs are joined by a cascading xfade chain whose
// offsets track the cumulative end of the left stream minus the overlap.
// Pairs whose transition is unknown or "none" fall back to concat.
func (c *compilation) buildTransitions(labels []string) (string, float64) {
	scenes := c.t.Scenes
	if len(labels) == 1 {
		return labels[0], scenes[0].DurationSec
	}

	anyTransition := false
	for i := 0; i < len(scenes)-1; i++ {
		tr := scenes[i].TransitionOut
		if tr == timeline.TransitionNone {
			continue
		}
		if tr.IsSupported() {
			anyTransition = true
		} else {
			c.warnf("unknown transition %q on scene %d, falling back to concat", tr, i)
		}
	}

	if !anyTransition {
		out := c.g.label("vcat")
		c.g.add(fmt.Sprintf("concat=n=%d:v=1:a=0", len(labels)), labels, out)
		total := 0.0
		for i := range scenes {
			total += scenes[i].DurationSec
		}
		return out, total
	}

	cur := labels[0]
	elapsed := scenes[0].DurationSec
	for i := 1; i < len(labels); i++ {
		tr := scenes[i-1].TransitionOut
		out := c.g.label("vx")
		if tr.IsSupported() {
			d := scenes[i-1].TransitionDurationSec
			offset := elapsed - d
			if offset < 0 {
				offset = 0
			}
			c.g.add(fmt.Sprintf("xfade=transition=%s:duration=%s:offset=%s", tr, ftoa(d), ftoa(offset)),
				[]string{cur, labels[i]}, out)
			elapsed = offset + d + (scenes[i].DurationSec - d)
		} else {
			c.g.add("concat=n=2:v=1:a=0", []string{cur, labels[i]}, out)
			elapsed += scenes[i].DurationSec
		}
		cur = out
	}
	return cur, elapsed
}

// reconcileDuration pads the final video with a freeze frame when the
// declared narration outruns the visual chain. The upstream scene selector
// is expected to match durations; this is a safety buffer.
func (c *compilation) reconcileDuration(label string, visual float64) string {
	vo := c.t.VoiceoverDurationSec()
	if vo <= 0 || vo <= visual+voiceoverSlack {
		return label
	}
	pad := vo - visual + voiceoverSlack
	out := c.g.label("vpad")
	c.g.add(fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%s", ftoa(pad)), []string{label}, out)
	return out
}

// outputArgs assembles the full engine argument list.
func (c *compilation) outputArgs(res *Result, totalDur float64, outputPath string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-stats"}

	for _, in := range res.Inputs {
		if in.IgnoreLoop {
			args = append(args, "-ignore_loop", "0")
		}
		if in.StreamLoop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", in.Path)
	}

	args = append(args, "-filter_complex", res.FilterGraph)
	args = append(args, "-map", "["+res.VideoLabel+"]")
	if res.AudioLabel != "" {
		args = append(args, "-map", "["+res.AudioLabel+"]")
	}

	exp := c.t.Export
	codec := "libx264"
	if exp.Codec == timeline.CodecH265 {
		codec = "libx265"
	}
	args = append(args, "-c:v", codec, "-preset", "medium")
	if exp.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(exp.CRF))
	} else {
		mbps := exp.BitrateMbps
		if mbps <= 0 {
			mbps = 5
		}
		args = append(args, "-b:v", fmt.Sprintf("%dk", int(mbps*1000)))
	}
	if res.AudioLabel != "" {
		args = append(args, "-c:a", "aac", "-b:a", fmt.Sprintf("%dk", exp.AudioKbps))
	}
	args = append(args,
		"-sn", "-dn",
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		"-t", ftoa(totalDur),
		outputPath,
	)
	return args
}

// ftoa formats a duration or coordinate deterministically with up to three
// decimal places and no trailing zeros.
func ftoa(f float64) string {
	r := math.Round(f*1000) / 1000
	return strconv.FormatFloat(r, 'f', -1, 64)
}
