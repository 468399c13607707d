//go:build windows

package overlay

// Native overlay: a layered, click-through, topmost popup per monitor. The
// window lives on its own locked OS thread running a message loop; other
// goroutines talk to it through posted WM_APP messages and InvalidateRect.

import (
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/soocke/pixel-censor-go/domain/capture"
)

const (
	wsPopup           = 0x80000000
	wsExLayered       = 0x00080000
	wsExTransparent   = 0x00000020
	wsExTopmost       = 0x00000008
	wsExToolWindow    = 0x00000080
	wsExNoActivate    = 0x08000000
	lwaColorKey       = 0x00000001
	wdaMonitor        = 0x00000001
	wdaExcludeCapture = 0x00000011
	swHide            = 0
	swShowNoActivate  = 4
	swpNoSize         = 0x0001
	swpNoMove         = 0x0002
	swpNoActivate     = 0x0010
	swpShowWindow     = 0x0040
	wmDestroy         = 0x0002
	wmClose           = 0x0010
	wmPaint           = 0x000F
	wmEraseBkgnd      = 0x0014
	wmMouseActivate   = 0x0021
	wmNCHitTest       = 0x0084
	wmApp             = 0x8000
	wmAppShow         = wmApp + 1
	wmAppHide         = wmApp + 2
	wmAppBounds       = wmApp + 3
	wmAppClose        = wmApp + 4
	maNoActivate      = 3
	dibRGBColors      = 0
	windowCloseWait   = 2 * time.Second
)

var (
	hwndTopmost   = ^uintptr(0) // HWND_TOPMOST (-1)
	htTransparent = ^uintptr(0) // HTTRANSPARENT (-1)
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	gdi32                        = windows.NewLazySystemDLL("gdi32.dll")
	kernel32                     = windows.NewLazySystemDLL("kernel32.dll")
	procRegisterClassExW         = user32.NewProc("RegisterClassExW")
	procCreateWindowExW          = user32.NewProc("CreateWindowExW")
	procDestroyWindow            = user32.NewProc("DestroyWindow")
	procDefWindowProcW           = user32.NewProc("DefWindowProcW")
	procGetMessageW              = user32.NewProc("GetMessageW")
	procTranslateMessage         = user32.NewProc("TranslateMessage")
	procDispatchMessageW         = user32.NewProc("DispatchMessageW")
	procPostMessageW             = user32.NewProc("PostMessageW")
	procPostQuitMessage          = user32.NewProc("PostQuitMessage")
	procShowWindow               = user32.NewProc("ShowWindow")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procSetWindowPos             = user32.NewProc("SetWindowPos")
	procInvalidateRect           = user32.NewProc("InvalidateRect")
	procBeginPaint               = user32.NewProc("BeginPaint")
	procEndPaint                 = user32.NewProc("EndPaint")
	procSetLayeredWindowAttribs  = user32.NewProc("SetLayeredWindowAttributes")
	procSetWindowDisplayAffinity = user32.NewProc("SetWindowDisplayAffinity")
	procSetDIBitsToDevice        = gdi32.NewProc("SetDIBitsToDevice")
	procGetModuleHandleW         = kernel32.NewProc("GetModuleHandleW")
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   uintptr
	Icon       uintptr
	Cursor     uintptr
	Background uintptr
	MenuName   *uint16
	ClassName  *uint16
	IconSm     uintptr
}

type point struct{ X, Y int32 }

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
	Private uint32
}

type rect struct{ Left, Top, Right, Bottom int32 }

type paintStruct struct {
	Hdc         uintptr
	Erase       int32
	RcPaint     rect
	Restore     int32
	IncUpdate   int32
	RgbReserved [32]byte
}

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

var (
	classOnce    sync.Once
	classErr     error
	className    = windows.StringToUTF16Ptr("PixelCensorOverlay")
	windowsMu    sync.Mutex
	liveWindows  = map[uintptr]*window{}
	affinityOnce sync.Once
)

type window struct {
	opts   Options
	logger *slog.Logger
	buf    doubleBuffer

	mu     sync.Mutex
	bounds image.Rectangle

	hwnd      uintptr
	vis       visibility
	destroyed atomic.Bool
	done      chan struct{}
}

func registerClass() error {
	classOnce.Do(func() {
		inst, _, _ := procGetModuleHandleW.Call(0)
		wc := wndClassEx{
			WndProc:   windows.NewCallback(wndProc),
			Instance:  inst,
			ClassName: className,
		}
		wc.Size = uint32(unsafe.Sizeof(wc))
		if r, _, _ := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
			classErr = fmt.Errorf("overlay: RegisterClassExW failed winerr=%v", windows.GetLastError())
		}
	})
	return classErr
}

func newWindow(bounds image.Rectangle, opts Options, logger *slog.Logger) (Renderer, error) {
	if err := registerClass(); err != nil {
		return nil, err
	}
	w := &window{opts: opts, logger: logger, bounds: bounds, done: make(chan struct{})}
	ready := make(chan error, 1)
	go w.loop(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return w, nil
}

// loop creates the window and pumps its messages. Win32 windows belong to
// the creating thread, so the goroutine stays locked to it.
func (w *window) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	inst, _, _ := procGetModuleHandleW.Call(0)
	b := w.bounds
	ex := uintptr(wsExLayered | wsExTransparent | wsExTopmost | wsExToolWindow | wsExNoActivate)
	hwnd, _, _ := procCreateWindowExW.Call(ex,
		uintptr(unsafe.Pointer(className)), uintptr(unsafe.Pointer(className)),
		uintptr(wsPopup),
		uintptr(int32(b.Min.X)), uintptr(int32(b.Min.Y)), uintptr(b.Dx()), uintptr(b.Dy()),
		0, 0, inst, 0)
	if hwnd == 0 {
		ready <- fmt.Errorf("overlay: CreateWindowExW failed winerr=%v", windows.GetLastError())
		return
	}
	w.hwnd = hwnd
	windowsMu.Lock()
	liveWindows[hwnd] = w
	windowsMu.Unlock()
	defer func() {
		windowsMu.Lock()
		delete(liveWindows, hwnd)
		windowsMu.Unlock()
	}()

	if r, _, _ := procSetLayeredWindowAttribs.Call(hwnd, uintptr(w.opts.Key.COLORREF()), 0, lwaColorKey); r == 0 {
		procDestroyWindow.Call(hwnd)
		ready <- fmt.Errorf("overlay: SetLayeredWindowAttributes failed winerr=%v", windows.GetLastError())
		return
	}
	w.excludeFromCapture()
	ready <- nil

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if r == 0 || r == ^uintptr(0) {
			return
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

// excludeFromCapture hides the window from screen capture. Systems before
// Windows 10 2004 only support WDA_MONITOR (black box in captures); older
// still have no affinity API. Both degrade with a single warning.
func (w *window) excludeFromCapture() {
	if procSetWindowDisplayAffinity.Find() != nil {
		w.warnAffinity("SetWindowDisplayAffinity missing")
		return
	}
	if r, _, _ := procSetWindowDisplayAffinity.Call(w.hwnd, wdaExcludeCapture); r != 0 {
		return
	}
	if r, _, _ := procSetWindowDisplayAffinity.Call(w.hwnd, wdaMonitor); r != 0 {
		w.warnAffinity("WDA_EXCLUDEFROMCAPTURE unsupported; using WDA_MONITOR")
		return
	}
	w.warnAffinity(fmt.Sprintf("SetWindowDisplayAffinity failed winerr=%v", windows.GetLastError()))
}

func (w *window) warnAffinity(reason string) {
	affinityOnce.Do(func() {
		if w.logger != nil {
			w.logger.Warn("overlay capture exclusion unavailable", "reason", reason)
		}
	})
}

func wndProc(hwnd, message, wParam, lParam uintptr) uintptr {
	windowsMu.Lock()
	w := liveWindows[hwnd]
	windowsMu.Unlock()
	if w == nil {
		r, _, _ := procDefWindowProcW.Call(hwnd, message, wParam, lParam)
		return r
	}
	switch message {
	case wmNCHitTest:
		return htTransparent
	case wmMouseActivate:
		return maNoActivate
	case wmEraseBkgnd:
		return 1
	case wmPaint:
		w.paint()
		return 0
	case wmAppShow:
		procShowWindow.Call(hwnd, swShowNoActivate)
		procSetWindowPos.Call(hwnd, hwndTopmost, 0, 0, 0, 0, swpNoMove|swpNoSize|swpNoActivate|swpShowWindow)
		w.vis.ack(uint64(wParam))
		return 0
	case wmAppHide:
		procShowWindow.Call(hwnd, swHide)
		w.vis.ack(uint64(wParam))
		return 0
	case wmAppBounds:
		w.mu.Lock()
		b := w.bounds
		w.mu.Unlock()
		procSetWindowPos.Call(hwnd, hwndTopmost,
			uintptr(int32(b.Min.X)), uintptr(int32(b.Min.Y)), uintptr(b.Dx()), uintptr(b.Dy()), swpNoActivate)
		return 0
	case wmAppClose, wmClose:
		procDestroyWindow.Call(hwnd)
		return 0
	case wmDestroy:
		w.destroyed.Store(true)
		procPostQuitMessage.Call(0)
		return 0
	}
	r, _, _ := procDefWindowProcW.Call(hwnd, message, wParam, lParam)
	return r
}

// paint blits the front surface under the buffer lock.
func (w *window) paint() {
	var ps paintStruct
	hdc, _, _ := procBeginPaint.Call(w.hwnd, uintptr(unsafe.Pointer(&ps)))
	if hdc == 0 {
		return
	}
	defer procEndPaint.Call(w.hwnd, uintptr(unsafe.Pointer(&ps)))
	w.buf.withFront(func(f *capture.FrameBuffer) {
		if f.Empty() {
			return
		}
		var bi bitmapInfoHeader
		bi.BiSize = uint32(unsafe.Sizeof(bi))
		bi.BiWidth = int32(f.Width)
		bi.BiHeight = -int32(f.Height) // top-down
		bi.BiPlanes = 1
		bi.BiBitCount = 32
		procSetDIBitsToDevice.Call(hdc, 0, 0, uintptr(f.Width), uintptr(f.Height), 0, 0, 0, uintptr(f.Height),
			uintptr(unsafe.Pointer(&f.Pix[0])), uintptr(unsafe.Pointer(&bi)), dibRGBColors)
	})
}

func (w *window) post(message, wParam uintptr) {
	if w.destroyed.Load() {
		return
	}
	if r, _, _ := procPostMessageW.Call(w.hwnd, message, wParam, 0); r == 0 {
		// Never delivered; stop reporting the request as pending.
		w.vis.ack(uint64(wParam))
	}
}

// Show and Hide are applied on the window thread; wParam carries the
// request sequence number it acknowledges.
func (w *window) Show() {
	w.post(wmAppShow, uintptr(w.vis.request(true)))
}

func (w *window) Hide() {
	w.post(wmAppHide, uintptr(w.vis.request(false)))
}

func (w *window) SetMonitorBounds(b image.Rectangle) {
	w.mu.Lock()
	w.bounds = b
	w.mu.Unlock()
	w.post(wmAppBounds, 0)
}

// Visible reports false once the window was destroyed or hidden by anyone
// other than Hide. A show still queued for the window thread counts as
// visible.
func (w *window) Visible() bool {
	if w.destroyed.Load() {
		return false
	}
	return w.vis.visible(func() bool {
		r, _, _ := procIsWindowVisible.Call(w.hwnd)
		return r != 0
	})
}

func (w *window) UpdateFrame(frame *capture.FrameBuffer) error {
	if w.destroyed.Load() {
		return errClosed
	}
	if frame.Empty() {
		return capture.ErrEmptyFrame
	}
	w.mu.Lock()
	size := w.bounds.Size()
	w.mu.Unlock()
	w.buf.render(frame, size, w.opts)
	procInvalidateRect.Call(w.hwnd, 0, 0)
	return nil
}

func (w *window) Close() error {
	w.post(wmAppClose, 0)
	select {
	case <-w.done:
	case <-time.After(windowCloseWait):
		return fmt.Errorf("overlay: window thread did not exit within %s", windowCloseWait)
	}
	w.buf.release()
	return nil
}
