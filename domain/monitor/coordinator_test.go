package monitor

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/soocke/pixel-censor-go/domain/capture"
)

type recordingSink struct {
	mu      sync.Mutex
	shown   bool
	frames  []*capture.FrameBuffer
	closed  bool
	bounds  image.Rectangle
	dismiss bool
}

func (s *recordingSink) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = true
}

func (s *recordingSink) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = false
}

func (s *recordingSink) SetMonitorBounds(b image.Rectangle) { s.bounds = b }
func (s *recordingSink) Close() error                       { s.closed = true; return nil }

func (s *recordingSink) UpdateFrame(f *capture.FrameBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f.Clone())
	return nil
}

func (s *recordingSink) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown && !s.dismiss
}

// twoMonitors places a 40x20 display left of a 60x30 primary, so the virtual
// desktop origin is negative.
func twoMonitors() []Region {
	return []Region{
		{Index: 0, Bounds: image.Rect(0, 0, 60, 30), Enabled: true},
		{Index: 1, Bounds: image.Rect(-40, 5, 0, 25), Enabled: true},
	}
}

func newTestCoordinator(t *testing.T, regions []Region) (*Coordinator, map[int]*recordingSink) {
	t.Helper()
	sinks := make(map[int]*recordingSink)
	c, err := NewCoordinator(regions, func(r Region) (Sink, error) {
		s := &recordingSink{bounds: r.Bounds}
		sinks[r.Index] = s
		return s, nil
	}, nil)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c, sinks
}

// desktopFrame marks each pixel with its virtual-desktop x in B and y in G.
func desktopFrame(vb image.Rectangle) *capture.FrameBuffer {
	fb := capture.NewFrameBuffer(vb.Dx(), vb.Dy())
	for y := 0; y < vb.Dy(); y++ {
		for x := 0; x < vb.Dx(); x++ {
			i := fb.Offset(x, y)
			fb.Pix[i] = byte(x + vb.Min.X + 100)
			fb.Pix[i+1] = byte(y + vb.Min.Y)
			fb.Pix[i+3] = 0xFF
		}
	}
	return fb
}

func TestVirtualBounds_UnionWithNegativeOrigin(t *testing.T) {
	vb := VirtualBounds(twoMonitors())
	if vb != image.Rect(-40, 0, 60, 30) {
		t.Fatalf("got %v", vb)
	}
}

func TestDispatch_ExtractsEachMonitor(t *testing.T) {
	regions := twoMonitors()
	c, sinks := newTestCoordinator(t, regions)
	vb := VirtualBounds(regions)
	if err := c.Dispatch(desktopFrame(vb), vb.Min); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	left := sinks[1].frames[0]
	if left.Width != 40 || left.Height != 20 {
		t.Fatalf("left monitor frame %dx%d want 40x20", left.Width, left.Height)
	}
	// Top-left of the left monitor is virtual (-40, 5).
	if left.Pix[0] != byte(-40+100) || left.Pix[1] != 5 {
		t.Fatalf("left monitor origin pixel %v", left.Pix[:4])
	}
	primary := sinks[0].frames[0]
	if primary.Width != 60 || primary.Pix[0] != 100 || primary.Pix[1] != 0 {
		t.Fatalf("primary frame w=%d first=%v", primary.Width, primary.Pix[:4])
	}
}

func TestDispatch_RejectsMonitorOutsideFrame(t *testing.T) {
	c, sinks := newTestCoordinator(t, twoMonitors())
	// Frame only covers the primary monitor.
	err := c.Dispatch(capture.NewFrameBuffer(60, 30), image.Point{})
	if !errors.Is(err, capture.ErrInvalidRect) {
		t.Fatalf("expected ErrInvalidRect, got %v", err)
	}
	if len(sinks[0].frames) != 1 || len(sinks[1].frames) != 0 {
		t.Fatalf("primary should still receive a frame")
	}
}

func TestSetEnabled_TogglesIndependently(t *testing.T) {
	c, sinks := newTestCoordinator(t, twoMonitors())
	c.Show()
	if !sinks[0].shown || !sinks[1].shown {
		t.Fatalf("show should show enabled monitors")
	}
	if err := c.SetEnabled(1, false); err != nil {
		t.Fatal(err)
	}
	if sinks[1].shown || !sinks[0].shown {
		t.Fatalf("toggle off should hide only monitor 1")
	}
	vb := VirtualBounds(c.Regions())
	c.Dispatch(desktopFrame(vb), vb.Min)
	if len(sinks[1].frames) != 0 {
		t.Fatalf("disabled monitor must not receive frames")
	}
	if err := c.SetEnabled(1, true); err != nil {
		t.Fatal(err)
	}
	if !sinks[1].shown {
		t.Fatalf("re-enabled monitor should be shown while group is shown")
	}
	if err := c.SetEnabled(7, true); err == nil {
		t.Fatalf("expected error for unknown monitor")
	}
}

func TestVisible_ReportsDismissal(t *testing.T) {
	c, sinks := newTestCoordinator(t, twoMonitors())
	c.Show()
	if !c.Visible() {
		t.Fatalf("expected visible")
	}
	sinks[0].dismiss = true
	if c.Visible() {
		t.Fatalf("dismissed overlay should make the group invisible")
	}
	c.SetEnabled(0, false)
	c.SetEnabled(1, false)
	if !c.Visible() || c.Active() {
		t.Fatalf("no enabled monitor: want visible=true active=false")
	}
}

func TestMonitorView_DispatchesSingleMonitor(t *testing.T) {
	c, sinks := newTestCoordinator(t, twoMonitors())
	d, err := c.Monitor(1)
	if err != nil {
		t.Fatal(err)
	}
	// Per-monitor worker captures just its own rectangle.
	own := image.Rect(-40, 5, 0, 25)
	if err := d.Dispatch(desktopFrame(own), own.Min); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sinks[1].frames) != 1 || len(sinks[0].frames) != 0 {
		t.Fatalf("view dispatched to wrong monitor")
	}
	c.SetEnabled(1, false)
	if d.Active() {
		t.Fatalf("view should report inactive after toggle")
	}
	if _, err := c.Monitor(9); err == nil {
		t.Fatalf("expected error for unknown monitor")
	}
}

func TestClose_ClosesSinks(t *testing.T) {
	c, sinks := newTestCoordinator(t, twoMonitors())
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	for i, s := range sinks {
		if !s.closed {
			t.Fatalf("sink %d not closed", i)
		}
	}
}

func TestRefresh_UpdatesBoundsAndMembership(t *testing.T) {
	c, sinks := newTestCoordinator(t, twoMonitors())
	c.Show()

	moved := image.Rect(0, 0, 80, 40)
	changed, err := c.Refresh([]Region{
		{Index: 0, Bounds: moved, Enabled: true},
		{Index: 2, Bounds: image.Rect(80, 0, 120, 40), Enabled: true},
	})
	if err != nil || !changed {
		t.Fatalf("refresh: changed=%v err=%v", changed, err)
	}
	if sinks[0].bounds != moved {
		t.Fatalf("sink 0 bounds: got %v want %v", sinks[0].bounds, moved)
	}
	if !sinks[2].Visible() {
		t.Fatalf("new monitor should be shown with the group")
	}
	if !sinks[1].closed {
		t.Fatalf("vanished monitor's overlay should be closed")
	}
	regions := c.Regions()
	if len(regions) != 2 || regions[0].Bounds != moved || regions[1].Index != 2 {
		t.Fatalf("regions after refresh: %+v", regions)
	}
	if got := VirtualBounds(regions); got != image.Rect(0, 0, 120, 40) {
		t.Fatalf("virtual bounds: got %v", got)
	}

	// Same geometry again is a no-op and keeps runtime toggles.
	if err := c.SetEnabled(2, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	changed, err = c.Refresh([]Region{
		{Index: 0, Bounds: moved, Enabled: true},
		{Index: 2, Bounds: image.Rect(80, 0, 120, 40), Enabled: true},
	})
	if err != nil || changed {
		t.Fatalf("second refresh: changed=%v err=%v", changed, err)
	}
	if c.Regions()[1].Enabled {
		t.Fatalf("refresh re-enabled a monitor the user turned off")
	}
}
