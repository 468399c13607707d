//go:build !windows

package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/vova616/screenshot"
)

// rectSource captures via the portable screenshot package. The library
// allocates a fresh RGBA image per call; pixels are swapped into one
// persistent BGRA buffer so downstream stages see the same layout as on
// Windows.
type rectSource struct {
	mu     sync.Mutex
	rect   image.Rectangle
	logger *slog.Logger
	out    *FrameBuffer
	closed bool
}

// VirtualScreen returns the primary screen rectangle.
func VirtualScreen() image.Rectangle {
	r, err := screenshot.ScreenRect()
	if err != nil {
		return image.Rectangle{}
	}
	return r
}

// NewDesktopSource captures the full screen.
func NewDesktopSource(logger *slog.Logger) (FrameSource, error) {
	return NewRectSource(VirtualScreen(), logger)
}

// NewRectSource captures a fixed rectangle.
func NewRectSource(r image.Rectangle, logger *slog.Logger) (FrameSource, error) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRect, r)
	}
	return &rectSource{rect: r, logger: logger, out: NewFrameBuffer(r.Dx(), r.Dy())}, nil
}

func (s *rectSource) Bounds() image.Rectangle { return s.rect }

func (s *rectSource) Acquire() (*FrameBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("capture: source closed")
	}
	img, err := screenshot.CaptureRect(s.rect)
	if err != nil {
		return nil, fmt.Errorf("capture: CaptureRect %v: %w", s.rect, err)
	}
	if img == nil || img.Rect.Empty() {
		return nil, ErrEmptyFrame
	}
	s.out.FromRGBA(img)
	return s.out, nil
}

func (s *rectSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
