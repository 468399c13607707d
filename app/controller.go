package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soocke/pixel-censor-go/domain/capture"
	"github.com/soocke/pixel-censor-go/domain/censor"
	"github.com/soocke/pixel-censor-go/domain/detection"
	"github.com/soocke/pixel-censor-go/domain/monitor"
	"github.com/soocke/pixel-censor-go/domain/tracking"
)

var (
	ErrAlreadyRunning = errors.New("app: pipeline already running")
	ErrWorkerPanic    = errors.New("app: worker panic")
	ErrStopTimeout    = errors.New("app: workers did not stop in time")
	ErrRunning        = errors.New("app: not allowed while running")
)

const defaultJoinTimeout = 2 * time.Second

// SourceFactory opens a frame source over r in virtual-desktop coordinates.
type SourceFactory func(r image.Rectangle) (capture.FrameSource, error)

// DetectorFactory returns the detector owned by one worker.
type DetectorFactory func() (detection.Detector, error)

// ControllerDeps wires a Controller.
type ControllerDeps struct {
	Settings    *SettingsStore
	Coordinator *monitor.Coordinator
	NewSource   SourceFactory
	NewDetector DetectorFactory
	Decoder     *detection.Decoder
	Compositor  *censor.Compositor
	TrackIoU    float64
	TrackMaxAge int
	// PerMonitor runs one worker per region instead of one shared worker
	// capturing the virtual desktop.
	PerMonitor bool
	// CaptureRect restricts the shared worker to a fixed rectangle. Empty
	// means the union of all regions.
	CaptureRect image.Rectangle
	JoinTimeout time.Duration
	Logger      *slog.Logger
	// Enumerate re-reads the display layout. When set, every Start picks up
	// the current geometry before building workers.
	Enumerate func() ([]monitor.Region, error)
}

// ControllerStats aggregates worker and capture counters.
type ControllerStats struct {
	Running   bool
	Pipelines []PipelineStats
	Captures  []capture.CaptureStats
}

// worker bundles one pipeline with the resources it owns.
type worker struct {
	pipeline *Pipeline
	capture  *capture.CaptureService
	detector detection.Detector
}

// Controller is the control surface: it starts and stops the workers and
// forwards setting changes into the shared store.
type Controller struct {
	d ControllerDeps

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	workers []*worker
	lastErr error
	onFault func(error)
}

// NewController returns a stopped controller.
func NewController(d ControllerDeps) *Controller {
	if d.JoinTimeout <= 0 {
		d.JoinTimeout = defaultJoinTimeout
	}
	return &Controller{d: d}
}

// OnFault registers fn to be called from a worker goroutine when the
// pipeline stops on its own (panic or overlay dismissal).
func (c *Controller) OnFault(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFault = fn
}

// Running reports whether workers are active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastError returns the error the previous run ended with, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Settings returns the current settings snapshot.
func (c *Controller) Settings() Settings { return c.d.Settings.Load() }

// Monitors returns the coordinator's regions.
func (c *Controller) Monitors() []monitor.Region { return c.d.Coordinator.Regions() }

// Start shows the overlays and launches the workers.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	if c.d.Enumerate != nil {
		if err := c.refreshLocked(); err != nil && c.d.Logger != nil {
			c.d.Logger.Warn("monitor refresh failed; keeping previous layout", "error", err)
		}
	}
	workers, err := c.buildWorkers()
	if err != nil {
		return err
	}
	c.d.Coordinator.Show()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error { return runGuarded(gctx, w.pipeline, c.d.Logger) })
	}
	done := make(chan struct{})
	c.running = true
	c.cancel = cancel
	c.done = done
	c.workers = workers
	c.lastErr = nil
	go func() {
		err := g.Wait()
		cancel()
		c.finish(workers, done, err)
	}()
	if c.d.Logger != nil {
		c.d.Logger.Info("pipeline started", "workers", len(workers), "per_monitor", c.d.PerMonitor)
	}
	return nil
}

// buildWorkers creates sources, detectors and pipelines. On failure
// everything already opened is released.
func (c *Controller) buildWorkers() ([]*worker, error) {
	type slot struct {
		name    string
		bounds  image.Rectangle
		display monitor.Display
	}
	var slots []slot
	if c.d.PerMonitor {
		for _, r := range c.d.Coordinator.Regions() {
			disp, err := c.d.Coordinator.Monitor(r.Index)
			if err != nil {
				return nil, err
			}
			slots = append(slots, slot{name: fmt.Sprintf("monitor-%d", r.Index), bounds: r.Bounds, display: disp})
		}
	} else {
		bounds := c.d.CaptureRect
		if bounds.Empty() {
			bounds = monitor.VirtualBounds(c.d.Coordinator.Regions())
		}
		slots = append(slots, slot{name: "shared", bounds: bounds, display: c.d.Coordinator})
	}

	var out []*worker
	for _, s := range slots {
		w, err := c.newWorker(s.name, s.bounds, s.display)
		if err != nil {
			closeWorkers(out)
			return nil, fmt.Errorf("app: %s: %w", s.name, err)
		}
		out = append(out, w)
	}
	return out, nil
}

func (c *Controller) newWorker(name string, bounds image.Rectangle, display monitor.Display) (*worker, error) {
	src, err := c.d.NewSource(bounds)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	svc := capture.NewCaptureService(src, c.d.Logger)
	var det detection.Detector
	if c.d.NewDetector != nil {
		if det, err = c.d.NewDetector(); err != nil {
			svc.Close()
			return nil, fmt.Errorf("create detector: %w", err)
		}
	}
	p := NewPipeline(PipelineDeps{
		Name:       name,
		Source:     svc,
		Detector:   det,
		Decoder:    c.d.Decoder,
		Tracker:    tracking.NewTracker(c.d.TrackIoU, c.d.TrackMaxAge),
		Compositor: c.d.Compositor,
		Display:    display,
		Settings:   c.d.Settings,
		Logger:     c.d.Logger,
	})
	return &worker{pipeline: p, capture: svc, detector: det}, nil
}

func closeWorkers(ws []*worker) {
	for _, w := range ws {
		w.capture.Close()
		if w.detector != nil {
			w.detector.Close()
		}
	}
}

// runGuarded runs p and converts a panic into ErrWorkerPanic.
func runGuarded(ctx context.Context, p *Pipeline, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("pipeline panic", "worker", p.Name(), "panic", r, "stack", string(debug.Stack()))
			}
			err = fmt.Errorf("%w: %s: %v", ErrWorkerPanic, p.Name(), r)
		}
	}()
	return p.Run(ctx)
}

// finish runs once every worker has returned.
func (c *Controller) finish(ws []*worker, done chan struct{}, err error) {
	closeWorkers(ws)
	c.d.Coordinator.Hide()

	c.mu.Lock()
	c.running = false
	c.lastErr = err
	fault := c.onFault
	close(done)
	c.mu.Unlock()

	if err == nil {
		if c.d.Logger != nil {
			c.d.Logger.Info("pipeline stopped")
		}
		return
	}
	if c.d.Logger != nil {
		c.d.Logger.Error("pipeline stopped", "error", err)
	}
	if fault != nil {
		fault(err)
	}
}

// Stop cancels the workers and waits up to the join timeout for them to
// exit. It is a no-op when nothing is running.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	t := time.NewTimer(c.d.JoinTimeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		if c.d.Logger != nil {
			c.d.Logger.Warn("stop timed out", "timeout", c.d.JoinTimeout)
		}
		return ErrStopTimeout
	}
}

// UpdateSetting validates and publishes one setting change. Workers pick it
// up at the start of their next tick.
func (c *Controller) UpdateSetting(key string, value any) error {
	if err := c.d.Settings.Update(key, value); err != nil {
		if c.d.Logger != nil {
			c.d.Logger.Warn("setting rejected", "key", key, "error", err)
		}
		return err
	}
	if c.d.Logger != nil {
		c.d.Logger.Info("setting updated", "key", key, "value", value)
	}
	return nil
}

// RefreshMonitors re-enumerates displays and moves, adds or retires
// overlays to match. Worker geometry is fixed for a run, so it is refused
// while running.
func (c *Controller) RefreshMonitors() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("app: refresh monitors: %w", ErrRunning)
	}
	return c.refreshLocked()
}

func (c *Controller) refreshLocked() error {
	if c.d.Enumerate == nil {
		return nil
	}
	regions, err := c.d.Enumerate()
	if err != nil {
		return fmt.Errorf("app: enumerate monitors: %w", err)
	}
	changed, err := c.d.Coordinator.Refresh(regions)
	if changed && c.d.Logger != nil {
		c.d.Logger.Info("monitor layout updated", "virtual_bounds", monitor.VirtualBounds(c.d.Coordinator.Regions()).String())
	}
	return err
}

// SetMonitorEnabled toggles one monitor's overlay and capture.
func (c *Controller) SetMonitorEnabled(index int, enabled bool) error {
	return c.d.Coordinator.SetEnabled(index, enabled)
}

// CaptureTest grabs a single frame of the configured capture area and saves
// it to path. It works whether or not the workers are running.
func (c *Controller) CaptureTest(path string) error {
	bounds := c.d.CaptureRect
	if bounds.Empty() {
		bounds = monitor.VirtualBounds(c.d.Coordinator.Regions())
	}
	src, err := c.d.NewSource(bounds)
	if err != nil {
		return fmt.Errorf("app: capture test: %w", err)
	}
	defer src.Close()
	if err := capture.CaptureTest(src, path); err != nil {
		return err
	}
	if c.d.Logger != nil {
		c.d.Logger.Info("capture test saved", "path", path, "bounds", bounds.String())
	}
	return nil
}

// Stats returns counters of the current or most recent run.
func (c *Controller) Stats() ControllerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := ControllerStats{Running: c.running}
	for _, w := range c.workers {
		st.Pipelines = append(st.Pipelines, w.pipeline.Stats())
		st.Captures = append(st.Captures, w.capture.Stats())
	}
	return st
}

// Summary renders Stats as one status line.
func (c *Controller) Summary() string {
	st := c.Stats()
	if len(st.Pipelines) == 0 {
		return "idle"
	}
	var ticks, dets, censored, skipped uint64
	var avg time.Duration
	for _, p := range st.Pipelines {
		ticks += p.Ticks
		dets += p.Detections
		censored += p.Censored
		skipped += p.Skipped
		avg += p.AvgTick
	}
	avg /= time.Duration(len(st.Pipelines))
	state := "stopped"
	if st.Running {
		state = "running"
	}
	return fmt.Sprintf("%s | workers %d | ticks %d | avg %s | detections %d | censored %d | skipped %d",
		state, len(st.Pipelines), ticks, avg.Round(time.Microsecond), dets, censored, skipped)
}

// Close stops the workers and releases every overlay.
func (c *Controller) Close() error {
	stopErr := c.Stop()
	return errors.Join(stopErr, c.d.Coordinator.Close())
}
