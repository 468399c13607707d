package censor

import (
	"image"

	"github.com/soocke/pixel-censor-go/domain/capture"
	"github.com/soocke/pixel-censor-go/domain/detection"
)

// Targets is the set of class names selected for censoring. An empty set
// censors nothing.
type Targets map[string]struct{}

// NewTargets builds a set from names.
func NewTargets(names ...string) Targets {
	t := make(Targets, len(names))
	for _, n := range names {
		t[n] = struct{}{}
	}
	return t
}

func (t Targets) Contains(name string) bool {
	_, ok := t[name]
	return ok
}

// Names returns the members in no particular order.
func (t Targets) Names() []string {
	out := make([]string, 0, len(t))
	for n := range t {
		out = append(out, n)
	}
	return out
}

// Options is the per-tick censor configuration.
type Options struct {
	Targets  Targets
	Strength int
	Kind     Kind
}

// Compositor selects censor regions and writes degraded pixels.
type Compositor struct {
	minSize     int
	sentinelMax int
}

// NewCompositor returns a compositor that skips regions whose width or
// height does not exceed minSize. sentinelMax is the upper bound of the
// near-black range reserved for "transparent" in overlay frames.
func NewCompositor(minSize, sentinelMax int) *Compositor {
	if minSize < 0 {
		minSize = 0
	}
	return &Compositor{minSize: minSize, sentinelMax: sentinelMax}
}

// SentinelMax returns the configured sentinel bound.
func (c *Compositor) SentinelMax() int { return c.sentinelMax }

// Regions returns the clamped pixel rectangles of every targeted detection
// that is large enough to censor.
func (c *Compositor) Regions(dets []detection.Detection, bounds image.Rectangle, targets Targets) []image.Rectangle {
	if len(targets) == 0 {
		return nil
	}
	var out []image.Rectangle
	for _, d := range dets {
		if !targets.Contains(d.ClassName) {
			continue
		}
		r := d.Box.Rect().Intersect(bounds)
		if r.Dx() <= c.minSize || r.Dy() <= c.minSize {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ApplyRegions degrades each rect of frame in place. Rects must already lie
// inside the frame; those that do not are skipped.
func (c *Compositor) ApplyRegions(frame *capture.FrameBuffer, rects []image.Rectangle, opts Options) {
	for _, r := range rects {
		view, err := frame.Region(r)
		if err != nil {
			continue
		}
		view.CopyFrom(Apply(view, opts.Kind, opts.Strength))
	}
}

// ApplyToFrame censors every targeted detection in frame in place and
// returns the rectangles it touched.
func (c *Compositor) ApplyToFrame(frame *capture.FrameBuffer, dets []detection.Detection, opts Options) []image.Rectangle {
	if frame.Empty() {
		return nil
	}
	rects := c.Regions(dets, frame.Bounds(), opts.Targets)
	c.ApplyRegions(frame, rects, opts)
	return rects
}

// Compose builds an overlay frame in dst from the raw frame: sentinel black
// everywhere except the censored regions. dst is resized to match frame.
func (c *Compositor) Compose(dst, frame *capture.FrameBuffer, dets []detection.Detection, opts Options) []image.Rectangle {
	if frame.Empty() {
		return nil
	}
	rects := c.Regions(dets, frame.Bounds(), opts.Targets)
	ExtractOverlay(dst, frame, rects)
	c.ApplyRegions(dst, rects, opts)
	LiftSentinel(dst, rects, c.sentinelMax)
	return rects
}
