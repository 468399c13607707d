//go:build windows

package capture

// Windows screen capture through a persistent GDI memory DC and top-down DIB
// section. The DIB is allocated once per source; each Acquire BitBlt's the
// desktop into it and copies the pixels into a reusable Go-owned buffer.

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	smCxVirtualScreen = 78
	smCyVirtualScreen = 79
	srccopy           = 0x00CC0020
	captureblt        = 0x40000000
	dibRGBColors      = 0
	biRgb             = 0
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procGetDC              = user32.NewProc("GetDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procGetSystemMetrics   = user32.NewProc("GetSystemMetrics")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procBitBlt             = gdi32.NewProc("BitBlt")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
)

// BITMAPINFO structures (Win32 layout).
type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte // one RGBQUAD placeholder (unused for 32-bit)
}

type gdiSource struct {
	mu     sync.Mutex
	rect   image.Rectangle
	logger *slog.Logger
	memDC  uintptr
	bmp    uintptr
	prev   uintptr
	bits   unsafe.Pointer
	out    *FrameBuffer
	closed bool
}

// VirtualScreen returns the bounding rectangle of all monitors.
func VirtualScreen() image.Rectangle {
	x := int(getSystemMetric(smXVirtualScreen))
	y := int(getSystemMetric(smYVirtualScreen))
	w := int(getSystemMetric(smCxVirtualScreen))
	h := int(getSystemMetric(smCyVirtualScreen))
	return image.Rect(x, y, x+w, y+h)
}

// NewDesktopSource captures the full virtual desktop.
func NewDesktopSource(logger *slog.Logger) (FrameSource, error) {
	return NewRectSource(VirtualScreen(), logger)
}

// NewRectSource captures a fixed rectangle in virtual-desktop coordinates.
func NewRectSource(r image.Rectangle, logger *slog.Logger) (FrameSource, error) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRect, r)
	}
	s := &gdiSource{rect: r, logger: logger}
	if err := s.init(); err != nil {
		s.release()
		return nil, err
	}
	if logger != nil {
		logger.Debug("capture source ready", "rect", r.String())
	}
	return s, nil
}

func (s *gdiSource) init() error {
	w, h := s.rect.Dx(), s.rect.Dy()
	screenDC, _, _ := procGetDC.Call(0)
	if screenDC == 0 {
		return fmt.Errorf("capture: GetDC failed winerr=%v", windows.GetLastError())
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, _ := procCreateCompatibleDC.Call(screenDC)
	if memDC == 0 {
		return fmt.Errorf("capture: CreateCompatibleDC failed winerr=%v", windows.GetLastError())
	}
	s.memDC = memDC

	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(w)
	bi.Header.BiHeight = -int32(h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRgb
	bi.Header.BiSizeImage = uint32(w * h * 4)

	var bits unsafe.Pointer
	bmp, _, _ := procCreateDIBSection.Call(memDC, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bits)), 0, 0)
	if bmp == 0 || bits == nil {
		return fmt.Errorf("capture: CreateDIBSection failed winerr=%v", windows.GetLastError())
	}
	s.bmp = bmp
	s.bits = bits

	prev, _, _ := procSelectObject.Call(memDC, bmp)
	if prev == 0 || prev == ^uintptr(0) { // failure or GDI_ERROR
		return fmt.Errorf("capture: SelectObject failed winerr=%v", windows.GetLastError())
	}
	s.prev = prev
	s.out = NewFrameBuffer(w, h)
	return nil
}

func (s *gdiSource) Bounds() image.Rectangle { return s.rect }

func (s *gdiSource) Acquire() (*FrameBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("capture: source closed")
	}
	w, h := s.rect.Dx(), s.rect.Dy()

	screenDC, _, _ := procGetDC.Call(0)
	if screenDC == 0 {
		return nil, fmt.Errorf("capture: GetDC failed winerr=%v", windows.GetLastError())
	}
	defer procReleaseDC.Call(0, screenDC)

	// Source coordinates are signed; uintptr carries the two's complement.
	ok, _, _ := procBitBlt.Call(s.memDC, 0, 0, uintptr(w), uintptr(h), screenDC,
		uintptr(int32(s.rect.Min.X)), uintptr(int32(s.rect.Min.Y)), srccopy|captureblt)
	if ok == 0 {
		return nil, fmt.Errorf("capture: BitBlt failed x=%d y=%d w=%d h=%d winerr=%v",
			s.rect.Min.X, s.rect.Min.Y, w, h, windows.GetLastError())
	}

	pixLen := w * h * 4
	src := unsafe.Slice((*byte)(s.bits), pixLen)
	dst := s.out.Pix
	copy(dst, src)
	// GDI leaves alpha undefined; force opaque.
	for i := 3; i < pixLen; i += 4 {
		dst[i] = 0xFF
	}
	return s.out, nil
}

func (s *gdiSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()
	return nil
}

func (s *gdiSource) release() {
	if s.memDC != 0 && s.prev != 0 {
		procSelectObject.Call(s.memDC, s.prev)
	}
	if s.bmp != 0 {
		procDeleteObject.Call(s.bmp)
		s.bmp = 0
	}
	if s.memDC != 0 {
		procDeleteDC.Call(s.memDC)
		s.memDC = 0
	}
	s.bits = nil
}

func getSystemMetric(idx int) int32 {
	v, _, _ := procGetSystemMetrics.Call(uintptr(idx))
	return int32(v)
}
