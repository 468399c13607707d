package detection

import (
	"fmt"
	"log/slog"
	"math"
)

// DecoderOptions configures post-processing of raw detector output.
type DecoderOptions struct {
	// InputSize is the square inference resolution boxes are expressed in.
	InputSize int
	// MinBoxPx drops boxes narrower or shorter than this after clamping.
	MinBoxPx   float64
	ClassNames []string
	Thresholds ClassThresholds
}

// Decoder converts a flat detector tensor into filtered, suppressed
// detections in source-frame coordinates.
type Decoder struct {
	opts   DecoderOptions
	logger *slog.Logger
}

// NewDecoder constructs a Decoder. A zero InputSize defaults to 640.
func NewDecoder(opts DecoderOptions, logger *slog.Logger) *Decoder {
	if opts.InputSize <= 0 {
		opts.InputSize = 640
	}
	if opts.Thresholds.Default <= 0 {
		opts.Thresholds.Default = 0.45
	}
	return &Decoder{opts: opts, logger: logger}
}

// Options returns the decoder configuration.
func (d *Decoder) Options() DecoderOptions { return d.opts }

// Decode interprets output as numFeatures planes of numDetections values:
// cx, cy, w, h, an optional objectness plane, then numClasses score planes.
// Malformed shapes yield an empty result and a log line.
func (d *Decoder) Decode(output []float32, numFeatures, numDetections, numClasses int, confidence float64, srcW, srcH int) []Detection {
	if err := validateShape(len(output), numFeatures, numDetections, numClasses); err != nil {
		if d.logger != nil {
			d.logger.Warn("decode skipped", "error", err)
		}
		return nil
	}
	if srcW <= 0 || srcH <= 0 {
		return nil
	}
	classOffset := numFeatures - numClasses
	sx := float64(srcW) / float64(d.opts.InputSize)
	sy := float64(srcH) / float64(d.opts.InputSize)
	fw, fh := float64(srcW), float64(srcH)

	plane := func(f, i int) float64 { return float64(output[f*numDetections+i]) }

	var candidates []Detection
	for i := 0; i < numDetections; i++ {
		best, bestScore := -1, 0.0
		for c := 0; c < numClasses; c++ {
			s := plane(classOffset+c, i)
			if best < 0 || s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore <= confidence || math.IsNaN(bestScore) {
			continue
		}
		cx, cy := plane(0, i)*sx, plane(1, i)*sy
		w, h := plane(2, i)*sx, plane(3, i)*sy
		if !finite(cx) || !finite(cy) || !finite(w) || !finite(h) {
			continue
		}
		box := Box{
			X1: clamp(cx-w/2, 0, fw),
			Y1: clamp(cy-h/2, 0, fh),
			X2: clamp(cx+w/2, 0, fw),
			Y2: clamp(cy+h/2, 0, fh),
		}
		if !(box.X1 < box.X2 && box.Y1 < box.Y2) || box.Width() < d.opts.MinBoxPx || box.Height() < d.opts.MinBoxPx {
			continue
		}
		candidates = append(candidates, Detection{
			ClassID:    best,
			ClassName:  d.className(best),
			Confidence: min(bestScore, 1),
			Box:        box,
		})
	}
	return NMS(candidates, d.opts.Thresholds)
}

func (d *Decoder) className(id int) string {
	if id >= 0 && id < len(d.opts.ClassNames) {
		return d.opts.ClassNames[id]
	}
	return fmt.Sprintf("class_%d", id)
}

func validateShape(n, numFeatures, numDetections, numClasses int) error {
	if numFeatures <= 0 || numDetections <= 0 || numClasses <= 0 {
		return fmt.Errorf("%w: features=%d detections=%d classes=%d", ErrMalformedOutput, numFeatures, numDetections, numClasses)
	}
	if n != numFeatures*numDetections {
		return fmt.Errorf("%w: len=%d want %d", ErrMalformedOutput, n, numFeatures*numDetections)
	}
	if off := numFeatures - numClasses; off != 4 && off != 5 {
		return fmt.Errorf("%w: class offset %d", ErrMalformedOutput, off)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
