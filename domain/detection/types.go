package detection

import (
	"errors"
	"image"
	"math"
)

var (
	// ErrMalformedOutput reports a detector tensor whose shape does not
	// match the model description.
	ErrMalformedOutput = errors.New("detection: malformed detector output")
	// ErrDetectorClosed is returned by Infer after Close.
	ErrDetectorClosed = errors.New("detection: detector closed")
)

// Box is an axis-aligned rectangle in source-frame pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Rect rounds the box outward to whole pixels.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X1)), int(math.Floor(b.Y1)),
		int(math.Ceil(b.X2)), int(math.Ceil(b.Y2)),
	)
}

// Detection is one decoded candidate that survived filtering and NMS.
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float64
	Box        Box
}

// IoU returns the intersection-over-union of a and b. It is 0 when the boxes
// do not overlap or either has non-positive area.
func IoU(a, b Box) float64 {
	areaA, areaB := a.Area(), b.Area()
	if areaA <= 0 || areaB <= 0 {
		return 0
	}
	iw := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1)
	ih := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	return inter / (areaA + areaB - inter)
}
