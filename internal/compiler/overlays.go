package compiler

import (
	"fmt"

	"github.com/clipforge/clipforge/internal/timeline"
)

// minCaptionDur is the shortest caption segment that is rendered.
const minCaptionDur = 0.1

// captionBottomFrac positions captions at this fraction of the frame height
// from the bottom.
const captionBottomFrac = 0.08

// buildOverlays applies the global overlay stack to the final video label:
// timed text overlays, then the brand logo, then timed image overlays on
// top, then burned-in captions. Inputs register in the opposite order
// (image overlays before the logo), so indices are resolved for both
// before any overlay node is emitted.
func (c *compilation) buildOverlays(label string) (string, error) {
	for i := range c.t.TextOverlays {
		o := &c.t.TextOverlays[i]
		if o.Text == "" {
			continue
		}
		out := c.g.label("vtx")
		c.g.add(c.drawText(o, true), []string{label}, out)
		label = out
	}

	imgIdx := make([]int, len(c.t.ImageOverlays))
	for i := range c.t.ImageOverlays {
		o := &c.t.ImageOverlays[i]
		path, err := c.assetPath(o.AssetID)
		if err != nil {
			return "", err
		}
		imgIdx[i] = c.inputIndex(path, Input{IgnoreLoop: o.IsGIF})
	}
	logoIdx := -1
	if c.t.Brand != nil {
		path, err := c.assetPath(c.t.Brand.LogoAssetID)
		if err != nil {
			return "", err
		}
		logoIdx = c.inputIndex(path, Input{})
	}

	label = c.buildLogo(label, logoIdx)
	label = c.buildImageOverlays(label, imgIdx)
	label = c.buildCaptions(label)
	return label, nil
}

// drawText emits a drawtext filter for a text overlay. Position is the
// overlay's center at (x%, y%) of the frame. timed gates visibility by the
// overlay's start/duration; scene-scoped text runs for the whole scene.
func (c *compilation) drawText(o *timeline.TextOverlay, timed bool) string {
	h := c.t.Resolution.Height
	size := o.Style.FontSize
	if size <= 0 {
		size = 5
	}
	fontSize := int((size / 10) * (float64(h) / 10))
	if fontSize < 8 {
		fontSize = 8
	}

	x := fmt.Sprintf("(w*%s/100)-(text_w/2)", ftoa(o.X))
	y := fmt.Sprintf("(h*%s/100)-(text_h/2)", ftoa(o.Y))

	f := fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s:x=%s:y=%s",
		escapeText(o.Text), fontSize, hexColor(o.Style.Color), x, y)
	if o.Style.Shadow {
		f += ":shadowcolor=black@0.7:shadowx=2:shadowy=2"
	}
	if timed && o.DurationSec > 0 {
		f += fmt.Sprintf(":enable='between(t,%s,%s)'", ftoa(o.StartSec), ftoa(o.StartSec+o.DurationSec))
	}
	return f
}

// buildLogo overlays the brand logo in its corner at a fixed margin.
func (c *compilation) buildLogo(label string, idx int) string {
	b := c.t.Brand
	if b == nil || idx < 0 {
		return label
	}

	scaled := c.g.label("logo")
	c.g.add(fmt.Sprintf("scale=%d:-1", b.SizePx), []string{itoa(idx) + ":v"}, scaled)

	var x, y string
	switch b.Corner {
	case timeline.CornerTopLeft:
		x, y = itoa(logoMarginPx), itoa(logoMarginPx)
	case timeline.CornerTopRight:
		x, y = fmt.Sprintf("main_w-overlay_w-%d", logoMarginPx), itoa(logoMarginPx)
	case timeline.CornerBottomLeft:
		x, y = itoa(logoMarginPx), fmt.Sprintf("main_h-overlay_h-%d", logoMarginPx)
	default:
		x, y = fmt.Sprintf("main_w-overlay_w-%d", logoMarginPx), fmt.Sprintf("main_h-overlay_h-%d", logoMarginPx)
	}

	out := c.g.label("vlogo")
	c.g.add(fmt.Sprintf("overlay=x=%s:y=%s", x, y), []string{label, scaled}, out)
	return out
}

// buildImageOverlays applies each timed image overlay. GIF overlays are
// pre-trimmed to their declared duration inside the graph; an untrimmed GIF
// is an infinite stream and stalls the engine at the end of encoding.
func (c *compilation) buildImageOverlays(label string, indices []int) string {
	for i := range c.t.ImageOverlays {
		o := &c.t.ImageOverlays[i]
		idx := indices[i]

		prep := fmt.Sprintf("scale=iw*%s:ih*%s", ftoa(o.Scale), ftoa(o.Scale))
		if o.IsGIF {
			prep = fmt.Sprintf("trim=start=0:end=%s,setpts=PTS-STARTPTS,", ftoa(o.DurationSec)) + prep
		}
		scaled := c.g.label("img")
		c.g.add(prep, []string{itoa(idx) + ":v"}, scaled)

		out := c.g.label("vimg")
		c.g.add(fmt.Sprintf(
			"overlay=x=(main_w*%s/100)-(overlay_w/2):y=(main_h*%s/100)-(overlay_h/2):enable='between(t,%s,%s)':eof_action=pass",
			ftoa(o.X), ftoa(o.Y), ftoa(o.StartSec), ftoa(o.StartSec+o.DurationSec)),
			[]string{label, scaled}, out)
		label = out
	}
	return label
}

// buildCaptions burns in caption segments as independent, time-gated text
// filters. Segments shorter than minCaptionDur or with a negative start are
// dropped with a warning.
func (c *compilation) buildCaptions(label string) string {
	caps := c.t.Captions
	if caps == nil || !caps.Enabled || !caps.BurnIn {
		return label
	}
	h := c.t.Resolution.Height
	fontSize := h / 18
	yOff := int(float64(h) * captionBottomFrac)

	for i, seg := range caps.Segments {
		dur := seg.EndSec - seg.StartSec
		if dur < minCaptionDur || seg.StartSec < 0 {
			c.warnf("dropping caption segment %d (%q): start=%s duration=%s", i, seg.Text, ftoa(seg.StartSec), ftoa(dur))
			continue
		}
		out := c.g.label("vcap")
		c.g.add(fmt.Sprintf(
			"drawtext=text='%s':fontsize=%d:fontcolor=white:x=(w-text_w)/2:y=h-%d-text_h:box=1:boxcolor=black@0.7:boxborderw=8:enable='between(t,%s,%s)'",
			escapeText(seg.Text), fontSize, yOff, ftoa(seg.StartSec), ftoa(seg.EndSec)),
			[]string{label}, out)
		label = out
	}
	return label
}
