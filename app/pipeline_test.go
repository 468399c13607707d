package app

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soocke/pixel-censor-go/domain/capture"
	"github.com/soocke/pixel-censor-go/domain/censor"
	"github.com/soocke/pixel-censor-go/domain/detection"
	"github.com/soocke/pixel-censor-go/domain/tracking"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

const frameSize = 64

// fakeSource returns the same uniform grey frame on every call.
type fakeSource struct {
	fb     *capture.FrameBuffer
	rect   image.Rectangle
	err    error
	closed atomic.Bool
}

func newFakeSource(r image.Rectangle) *fakeSource {
	fb := capture.NewFrameBuffer(r.Dx(), r.Dy())
	fb.Fill(fb.Bounds(), 100, 100, 100, 0xFF)
	return &fakeSource{fb: fb, rect: r}
}

func (f *fakeSource) Acquire() (*capture.FrameBuffer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fb, nil
}
func (f *fakeSource) Bounds() image.Rectangle { return f.rect }
func (f *fakeSource) Close() error            { f.closed.Store(true); return nil }

// fakeDetector reports one 20x20 box centred in the frame on calls for which
// hit returns true. Calls are numbered from 1. A non-nil block stalls Infer
// until it is closed; delay slows every call.
type fakeDetector struct {
	mu     sync.Mutex
	calls  int
	hit    func(call int) bool
	panics bool
	delay  time.Duration
	block  chan struct{}
	closed atomic.Bool
}

var testModel = detection.ModelInfo{InputSize: frameSize, NumFeatures: 5, NumDetections: 1, NumClasses: 1}

func (d *fakeDetector) Infer([]float32) ([]float32, error) {
	if d.block != nil {
		<-d.block
	}
	time.Sleep(d.delay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.panics {
		panic("detector exploded")
	}
	out := make([]float32, testModel.OutputLen())
	if d.hit == nil || d.hit(d.calls) {
		copy(out, []float32{32, 32, 20, 20, 0.9})
	}
	return out, nil
}

func (d *fakeDetector) Model() detection.ModelInfo { return testModel }
func (d *fakeDetector) Close() error               { d.closed.Store(true); return nil }

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeDisplay keeps a copy of every dispatched overlay frame.
type fakeDisplay struct {
	mu           sync.Mutex
	frames       []*capture.FrameBuffer
	dismissAfter int
	inactive     bool
	hiddenUntil  time.Time
}

func (d *fakeDisplay) Dispatch(frame *capture.FrameBuffer, origin image.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, frame.Clone())
	return nil
}

func (d *fakeDisplay) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if time.Now().Before(d.hiddenUntil) {
		return false
	}
	return d.dismissAfter == 0 || len(d.frames) < d.dismissAfter
}

func (d *fakeDisplay) Active() bool { return !d.inactive }

func (d *fakeDisplay) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func (d *fakeDisplay) Frame(i int) *capture.FrameBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames[i]
}

func testSettings() Settings {
	return Settings{
		TargetFPS:       240,
		EnableDetection: true,
		EnableCensoring: true,
		CensorType:      censor.Mosaic,
		Strength:        4,
		Confidence:      0.35,
		Targets:         censor.NewTargets("FACE"),
		HoldLostTracks:  true,
	}
}

func testDecoder() *detection.Decoder {
	return detection.NewDecoder(detection.DecoderOptions{
		InputSize:  frameSize,
		MinBoxPx:   1,
		ClassNames: []string{"FACE"},
		Thresholds: detection.ClassThresholds{Default: 0.45},
	}, discardLogger)
}

func newTestPipeline(src capture.FrameSource, det detection.Detector, disp *fakeDisplay, s Settings) *Pipeline {
	return NewPipeline(PipelineDeps{
		Name:       "test",
		Source:     src,
		Detector:   det,
		Decoder:    testDecoder(),
		Tracker:    tracking.NewTracker(0.3, 5),
		Compositor: censor.NewCompositor(4, 3),
		Display:    disp,
		Settings:   NewSettingsStore(s),
		Logger:     discardLogger,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// runUntil runs p until at least n frames were dispatched, then stops it.
func runUntil(t *testing.T, p *Pipeline, disp *fakeDisplay, n int) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	waitFor(t, "frames", func() bool { return disp.Count() >= n })
	cancel()
	select {
	case err := <-errc:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("pipeline did not stop after cancel")
		return nil
	}
}

func isSentinel(fb *capture.FrameBuffer, x, y int) bool {
	i := fb.Offset(x, y)
	return fb.Pix[i] <= 3 && fb.Pix[i+1] <= 3 && fb.Pix[i+2] <= 3
}

func TestPipeline_CensorsDetectedRegion(t *testing.T) {
	src := newFakeSource(image.Rect(0, 0, frameSize, frameSize))
	disp := &fakeDisplay{}
	p := newTestPipeline(src, &fakeDetector{}, disp, testSettings())

	if err := runUntil(t, p, disp, 2); err != nil {
		t.Fatalf("run: %v", err)
	}
	f := disp.Frame(0)
	if isSentinel(f, 32, 32) {
		t.Fatalf("detected region should carry censored pixels")
	}
	if !isSentinel(f, 2, 2) || !isSentinel(f, 60, 60) {
		t.Fatalf("pixels outside the region must be sentinel black")
	}
	st := p.Stats()
	if st.Ticks == 0 || st.Detections == 0 || st.Censored == 0 {
		t.Fatalf("stats not counted: %+v", st)
	}
}

func TestPipeline_LeavesCapturedFrameUntouched(t *testing.T) {
	src := newFakeSource(image.Rect(0, 0, frameSize, frameSize))
	disp := &fakeDisplay{}
	p := newTestPipeline(src, &fakeDetector{}, disp, testSettings())
	if err := runUntil(t, p, disp, 1); err != nil {
		t.Fatalf("run: %v", err)
	}
	if i := src.fb.Offset(2, 2); src.fb.Pix[i] != 100 {
		t.Fatalf("source frame modified: %v", src.fb.Pix[i:i+4])
	}
}

func TestPipeline_DetectionDisabled(t *testing.T) {
	s := testSettings()
	s.EnableDetection = false
	det := &fakeDetector{}
	disp := &fakeDisplay{}
	p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), det, disp, s)
	if err := runUntil(t, p, disp, 2); err != nil {
		t.Fatalf("run: %v", err)
	}
	if det.Calls() != 0 {
		t.Fatalf("detector called %d times with detection disabled", det.Calls())
	}
	if !isSentinel(disp.Frame(1), 32, 32) {
		t.Fatalf("nothing should be censored")
	}
}

func TestPipeline_UntargetedClassIgnored(t *testing.T) {
	s := testSettings()
	s.Targets = censor.NewTargets("OTHER")
	disp := &fakeDisplay{}
	p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), &fakeDetector{}, disp, s)
	if err := runUntil(t, p, disp, 1); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !isSentinel(disp.Frame(0), 32, 32) {
		t.Fatalf("non-target class must not be censored")
	}
}

func TestPipeline_HoldLostTracks(t *testing.T) {
	for _, hold := range []bool{true, false} {
		s := testSettings()
		s.HoldLostTracks = hold
		det := &fakeDetector{hit: func(call int) bool { return call == 1 }}
		disp := &fakeDisplay{}
		p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), det, disp, s)
		if err := runUntil(t, p, disp, 3); err != nil {
			t.Fatalf("run: %v", err)
		}
		if isSentinel(disp.Frame(0), 32, 32) {
			t.Fatalf("hold=%v: first frame should be censored", hold)
		}
		if got := !isSentinel(disp.Frame(1), 32, 32); got != hold {
			t.Fatalf("hold=%v: second frame censored=%v", hold, got)
		}
	}
}

func TestPipeline_CaptureFailureSkipsTick(t *testing.T) {
	src := newFakeSource(image.Rect(0, 0, frameSize, frameSize))
	src.err = capture.ErrEmptyFrame
	disp := &fakeDisplay{}
	p := newTestPipeline(src, &fakeDetector{}, disp, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	waitFor(t, "skips", func() bool { return p.Stats().Skipped >= 3 })
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
	if disp.Count() != 0 {
		t.Fatalf("failed captures must not dispatch, got %d frames", disp.Count())
	}
}

func TestPipeline_StopsWhenOverlayDismissed(t *testing.T) {
	disp := &fakeDisplay{dismissAfter: 2}
	p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), &fakeDetector{}, disp, testSettings())
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrOverlayDismissed) {
			t.Fatalf("got %v want ErrOverlayDismissed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("pipeline kept running after dismissal")
	}
}

func TestPipeline_InactiveDisplayDoesNotCapture(t *testing.T) {
	det := &fakeDetector{}
	disp := &fakeDisplay{inactive: true}
	p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), det, disp, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	waitFor(t, "ticks", func() bool { return p.Stats().Ticks >= 3 })
	cancel()
	<-errc
	if det.Calls() != 0 || disp.Count() != 0 {
		t.Fatalf("inactive display: calls=%d frames=%d", det.Calls(), disp.Count())
	}
}

func TestPipeline_SettingsChangeTakesEffect(t *testing.T) {
	disp := &fakeDisplay{}
	p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), &fakeDetector{}, disp, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	waitFor(t, "first frame", func() bool { return disp.Count() >= 1 })

	if err := p.settings.Update(KeyEnableCensoring, false); err != nil {
		t.Fatalf("update: %v", err)
	}
	// The snapshot is read at the start of a tick; allow one in-flight tick.
	n := disp.Count() + 2
	waitFor(t, "frames after update", func() bool { return disp.Count() >= n })
	if !isSentinel(disp.Frame(n-1), 32, 32) {
		t.Fatalf("censoring still applied after disabling it")
	}
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sleep(ctx, time.Hour)
	if time.Since(start) > time.Second {
		t.Fatalf("sleep ignored cancellation")
	}
}

func TestPipeline_LateVisibilityIsNotDismissal(t *testing.T) {
	// The overlay becomes visible only after Run has started, as a native
	// window does when Show is applied on its own thread.
	disp := &fakeDisplay{hiddenUntil: time.Now().Add(60 * time.Millisecond)}
	p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), &fakeDetector{}, disp, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	waitFor(t, "visible", func() bool { return time.Now().After(disp.hiddenUntil.Add(40 * time.Millisecond)) })
	select {
	case err := <-errc:
		t.Fatalf("run ended while the overlay was still appearing: %v", err)
	default:
	}
	if disp.Count() == 0 {
		t.Fatalf("no frames dispatched")
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestPipeline_PacesToTargetFPS(t *testing.T) {
	s := testSettings()
	s.TargetFPS = 20
	disp := &fakeDisplay{}
	p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), &fakeDetector{}, disp, s)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	// 500 ms at 50 ms per tick.
	if n := disp.Count(); n < 7 || n > 12 {
		t.Fatalf("got %d frames in 500ms at 20fps, want about 10", n)
	}
	if st := p.Stats(); st.Overruns > 1 {
		t.Fatalf("fast ticks counted as overruns: %+v", st)
	}
}

func TestPipeline_CountsOverruns(t *testing.T) {
	s := testSettings()
	s.TargetFPS = 100
	disp := &fakeDisplay{}
	det := &fakeDetector{delay: 25 * time.Millisecond}
	p := newTestPipeline(newFakeSource(image.Rect(0, 0, frameSize, frameSize)), det, disp, s)
	if err := runUntil(t, p, disp, 3); err != nil {
		t.Fatalf("run: %v", err)
	}
	if st := p.Stats(); st.Overruns < 3 {
		t.Fatalf("ticks slower than the 10ms interval: got %d overruns, want >= 3", st.Overruns)
	}
}
