package overlay

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/soocke/pixel-censor-go/domain/capture"
)

// Renderer displays composited frames for one monitor.
type Renderer interface {
	Show()
	Hide()
	UpdateFrame(frame *capture.FrameBuffer) error
	SetMonitorBounds(bounds image.Rectangle)
	Visible() bool
	Close() error
}

var (
	errUnsupported = errors.New("overlay: native window unsupported on this platform")
	errClosed      = errors.New("overlay: renderer closed")
	fallbackOnce   sync.Once
)

// New creates a native overlay window covering bounds. When no native window
// can be created it logs once and returns a headless renderer, so the
// pipeline keeps running.
func New(bounds image.Rectangle, opts Options, logger *slog.Logger) (Renderer, error) {
	if bounds.Empty() {
		return nil, fmt.Errorf("overlay: empty bounds %v", bounds)
	}
	w, err := newWindow(bounds, opts, logger)
	if err == nil {
		return w, nil
	}
	fallbackOnce.Do(func() {
		if logger != nil {
			logger.Warn("overlay window unavailable; rendering headless", "error", err)
		}
	})
	return NewHeadless(bounds, opts), nil
}

// Headless renders into memory only. It backs platforms without a native
// overlay and tests.
type Headless struct {
	opts    Options
	buf     doubleBuffer
	mu      sync.Mutex
	bounds  image.Rectangle
	visible atomic.Bool
	closed  atomic.Bool
	frames  atomic.Uint64
}

// NewHeadless returns an in-memory renderer.
func NewHeadless(bounds image.Rectangle, opts Options) *Headless {
	return &Headless{opts: opts, bounds: bounds}
}

func (h *Headless) Show() {
	if !h.closed.Load() {
		h.visible.Store(true)
	}
}

func (h *Headless) Hide() { h.visible.Store(false) }

func (h *Headless) Visible() bool { return h.visible.Load() && !h.closed.Load() }

func (h *Headless) SetMonitorBounds(b image.Rectangle) {
	h.mu.Lock()
	h.bounds = b
	h.mu.Unlock()
}

// Dismiss simulates the user closing the overlay externally.
func (h *Headless) Dismiss() { h.visible.Store(false) }

func (h *Headless) UpdateFrame(frame *capture.FrameBuffer) error {
	if h.closed.Load() {
		return errClosed
	}
	if frame.Empty() {
		return capture.ErrEmptyFrame
	}
	h.mu.Lock()
	size := h.bounds.Size()
	h.mu.Unlock()
	h.buf.render(frame, size, h.opts)
	h.frames.Add(1)
	return nil
}

// Frames returns how many frames were committed.
func (h *Headless) Frames() uint64 { return h.frames.Load() }

// Surface returns a copy of the displayed surface, or nil before the first
// frame.
func (h *Headless) Surface() *capture.FrameBuffer {
	var out *capture.FrameBuffer
	h.buf.withFront(func(f *capture.FrameBuffer) {
		if f != nil {
			out = f.Clone()
		}
	})
	return out
}

func (h *Headless) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.visible.Store(false)
	h.buf.release()
	return nil
}
