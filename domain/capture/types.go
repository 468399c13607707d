package capture

import (
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrEmptyFrame is returned when a source yields no pixels.
	ErrEmptyFrame = errors.New("capture: empty frame")
	// ErrInvalidRect is returned for rectangles with non-positive size or
	// regions that do not fit inside a frame.
	ErrInvalidRect = errors.New("capture: invalid rect")
)

// FrameBuffer is a 4-channel, 8-bit, row-major pixel grid in B,G,R,A order.
// Stride is the byte distance between row starts and may exceed Width*4 for
// views produced by Region.
type FrameBuffer struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
}

// NewFrameBuffer allocates a zeroed w x h buffer.
func NewFrameBuffer(w, h int) *FrameBuffer {
	if w <= 0 || h <= 0 {
		return &FrameBuffer{}
	}
	return &FrameBuffer{Pix: make([]byte, w*h*4), Stride: w * 4, Width: w, Height: h}
}

// Bounds returns the buffer rectangle anchored at the origin.
func (f *FrameBuffer) Bounds() image.Rectangle {
	if f == nil {
		return image.Rectangle{}
	}
	return image.Rect(0, 0, f.Width, f.Height)
}

// Empty reports whether the buffer holds no pixels.
func (f *FrameBuffer) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) == 0
}

// Offset returns the index of pixel (x, y) in Pix.
func (f *FrameBuffer) Offset(x, y int) int { return y*f.Stride + x*4 }

// Clone returns a tightly packed deep copy.
func (f *FrameBuffer) Clone() *FrameBuffer {
	if f.Empty() {
		return &FrameBuffer{}
	}
	out := NewFrameBuffer(f.Width, f.Height)
	out.CopyFrom(f)
	return out
}

// CopyFrom copies the overlapping area of src into f row by row.
func (f *FrameBuffer) CopyFrom(src *FrameBuffer) {
	if f.Empty() || src.Empty() {
		return
	}
	w := min(f.Width, src.Width)
	h := min(f.Height, src.Height)
	for y := 0; y < h; y++ {
		copy(f.Pix[y*f.Stride:y*f.Stride+w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
	}
}

// Region returns a view of r sharing f's memory. r must lie inside f.
func (f *FrameBuffer) Region(r image.Rectangle) (*FrameBuffer, error) {
	if r.Empty() || !r.In(f.Bounds()) {
		return nil, fmt.Errorf("%w: region %v outside %v", ErrInvalidRect, r, f.Bounds())
	}
	start := f.Offset(r.Min.X, r.Min.Y)
	end := f.Offset(r.Max.X-1, r.Max.Y-1) + 4
	return &FrameBuffer{
		Pix:    f.Pix[start:end:end],
		Stride: f.Stride,
		Width:  r.Dx(),
		Height: r.Dy(),
	}, nil
}

// RGBAView wraps the buffer as an *image.RGBA sharing the same memory. The
// channel order is left untouched, so the result is only meaningful for
// channel-agnostic operations such as resampling.
func (f *FrameBuffer) RGBAView() *image.RGBA {
	if f.Empty() {
		return image.NewRGBA(image.Rectangle{})
	}
	return &image.RGBA{Pix: f.Pix, Stride: f.Stride, Rect: f.Bounds()}
}

// ToRGBA returns a copy with channels swapped into R,G,B,A order.
func (f *FrameBuffer) ToRGBA() *image.RGBA {
	if f.Empty() {
		return image.NewRGBA(image.Rectangle{})
	}
	dst := image.NewRGBA(f.Bounds())
	for y := 0; y < f.Height; y++ {
		s := f.Pix[y*f.Stride : y*f.Stride+f.Width*4]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+f.Width*4]
		for i := 0; i < len(s); i += 4 {
			d[i+0] = s[i+2]
			d[i+1] = s[i+1]
			d[i+2] = s[i+0]
			d[i+3] = s[i+3]
		}
	}
	return dst
}

// FromRGBA copies an RGBA image into f (resized to match), swapping channels
// into B,G,R,A order. Pixels are forced opaque.
func (f *FrameBuffer) FromRGBA(img *image.RGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if f.Width != w || f.Height != h || cap(f.Pix) < w*h*4 {
		*f = *NewFrameBuffer(w, h)
	}
	for y := 0; y < h; y++ {
		s := img.Pix[y*img.Stride : y*img.Stride+w*4]
		d := f.Pix[y*f.Stride : y*f.Stride+w*4]
		for i := 0; i < len(s); i += 4 {
			d[i+0] = s[i+2]
			d[i+1] = s[i+1]
			d[i+2] = s[i+0]
			d[i+3] = 0xFF
		}
	}
}

// Fill sets every pixel inside r (clipped to the buffer) to the given BGRA value.
func (f *FrameBuffer) Fill(r image.Rectangle, b, g, rr, a byte) {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := f.Pix[f.Offset(r.Min.X, y):f.Offset(r.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			row[i+0] = b
			row[i+1] = g
			row[i+2] = rr
			row[i+3] = a
		}
	}
}

// Clear zeroes every pixel inside r.
func (f *FrameBuffer) Clear(r image.Rectangle) {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		clear(f.Pix[f.Offset(r.Min.X, y):f.Offset(r.Max.X, y)])
	}
}

// FrameSource yields screen frames for a fixed rectangle of the virtual
// desktop. The returned buffer is owned by the source and is only valid
// until the next Acquire call.
type FrameSource interface {
	Acquire() (*FrameBuffer, error)
	Bounds() image.Rectangle
	Close() error
}

// CaptureStats contains instrumentation metrics for a capture source.
type CaptureStats struct {
	Captures         uint64
	Failures         uint64
	AvgCapture       time.Duration
	AvgCaptureMicros float64
	LastCapture      time.Time
	LatestFrameAge   time.Duration
	Sequence         uint64
}
