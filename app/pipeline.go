package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soocke/pixel-censor-go/domain/capture"
	"github.com/soocke/pixel-censor-go/domain/censor"
	"github.com/soocke/pixel-censor-go/domain/detection"
	"github.com/soocke/pixel-censor-go/domain/monitor"
	"github.com/soocke/pixel-censor-go/domain/tracking"
)

const (
	captureRetryBackoff      = 10 * time.Millisecond
	pipelineStatsLogInterval = 5 * time.Second
	// defaultDismissGrace is how long a display must stay invisible before
	// the run counts as dismissed. Overlay windows apply Show on their own
	// thread, so visibility can lag a Show or a monitor re-enable.
	defaultDismissGrace = 250 * time.Millisecond
)

// ErrOverlayDismissed is returned by Run when the overlay stops being
// visible for reasons other than Stop.
var ErrOverlayDismissed = errors.New("app: overlay dismissed")

// PipelineStats contains per-worker instrumentation.
type PipelineStats struct {
	Name       string
	Ticks      uint64
	Skipped    uint64
	Detections uint64
	Censored   uint64
	Overruns   uint64
	AvgTick    time.Duration
}

// Pipeline runs capture -> detect -> track -> censor -> render for one
// display. All state except the settings store is private to its worker.
type Pipeline struct {
	name       string
	source     capture.FrameSource
	detector   detection.Detector
	decoder    *detection.Decoder
	tracker    *tracking.Tracker
	compositor *censor.Compositor
	display    monitor.Display
	settings   *SettingsStore
	logger     *slog.Logger
	grace      time.Duration

	tensor  []float32
	overlay *capture.FrameBuffer
	pending []detection.Detection

	ticks      atomic.Uint64
	skipped    atomic.Uint64
	detections atomic.Uint64
	censored   atomic.Uint64
	overruns   atomic.Uint64
	tickNanos  atomic.Uint64
}

// PipelineDeps wires a Pipeline. Detector may be nil when detection is never
// enabled.
type PipelineDeps struct {
	Name       string
	Source     capture.FrameSource
	Detector   detection.Detector
	Decoder    *detection.Decoder
	Tracker    *tracking.Tracker
	Compositor *censor.Compositor
	Display    monitor.Display
	Settings   *SettingsStore
	Logger     *slog.Logger
	// DismissGrace overrides defaultDismissGrace when positive.
	DismissGrace time.Duration
}

// NewPipeline constructs a pipeline. Every log line carries a fresh run id.
func NewPipeline(d PipelineDeps) *Pipeline {
	logger := d.Logger
	grace := d.DismissGrace
	if grace <= 0 {
		grace = defaultDismissGrace
	}
	if logger != nil {
		logger = logger.With("run_id", uuid.NewString(), "worker", d.Name)
	}
	return &Pipeline{
		name:       d.Name,
		source:     d.Source,
		detector:   d.Detector,
		decoder:    d.Decoder,
		tracker:    d.Tracker,
		compositor: d.Compositor,
		display:    d.Display,
		settings:   d.Settings,
		logger:     logger,
		grace:      grace,
		overlay:    &capture.FrameBuffer{},
	}
}

func (p *Pipeline) Name() string { return p.name }

// Run loops until ctx is cancelled or the display has reported itself
// invisible for longer than the dismiss grace. Each iteration reads one settings snapshot, runs one tick and
// sleeps whatever remains of the frame interval.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.logger != nil {
		p.logger.Info("pipeline started", "bounds", p.source.Bounds().String())
	}
	lastLog := time.Now()
	var hiddenSince time.Time
	for {
		if ctx.Err() != nil {
			p.logStats("pipeline stopped")
			return nil
		}
		if p.display.Visible() {
			hiddenSince = time.Time{}
		} else if hiddenSince.IsZero() {
			hiddenSince = time.Now()
		} else if time.Since(hiddenSince) >= p.grace {
			p.logStats("pipeline stopped: overlay dismissed")
			return ErrOverlayDismissed
		}
		s := p.settings.Load()
		start := time.Now()

		if p.display.Active() {
			frame, err := p.source.Acquire()
			if err != nil {
				p.skipped.Add(1)
				if p.logger != nil {
					p.logger.Debug("capture failed", "error", err)
				}
				sleep(ctx, captureRetryBackoff)
				continue
			}
			p.process(frame, s)
		}

		elapsed := time.Since(start)
		p.ticks.Add(1)
		p.tickNanos.Add(uint64(elapsed.Nanoseconds()))
		if rem := s.Interval() - elapsed; rem > 0 {
			sleep(ctx, rem)
		} else {
			p.overruns.Add(1)
		}

		if time.Since(lastLog) >= pipelineStatsLogInterval {
			lastLog = time.Now()
			p.logStats("pipeline.stats")
		}
	}
}

// process runs everything after capture for one frame.
func (p *Pipeline) process(frame *capture.FrameBuffer, s Settings) {
	var dets []detection.Detection
	if s.EnableDetection {
		dets = p.detect(frame, s.Confidence)
	} else if p.tracker.Len() > 0 {
		p.tracker.Reset()
	}
	p.detections.Add(uint64(len(dets)))
	tracked := p.tracker.Update(dets)

	p.pending = p.pending[:0]
	if s.EnableCensoring {
		if s.HoldLostTracks {
			tracked = p.tracker.Active()
		}
		for _, t := range tracked {
			p.pending = append(p.pending, t.Detection)
		}
	}
	rects := p.compositor.Compose(p.overlay, frame, p.pending, s.CensorOptions())
	p.censored.Add(uint64(len(rects)))

	if err := p.display.Dispatch(p.overlay, p.source.Bounds().Min); err != nil && p.logger != nil {
		p.logger.Debug("dispatch failed", "error", err)
	}
}

func (p *Pipeline) detect(frame *capture.FrameBuffer, confidence float64) []detection.Detection {
	if p.detector == nil || p.decoder == nil {
		return nil
	}
	info := p.detector.Model()
	p.tensor = detection.Preprocess(frame, info.InputSize, p.tensor)
	out, err := p.detector.Infer(p.tensor)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("inference failed", "error", err)
		}
		return nil
	}
	return p.decoder.Decode(out, info.NumFeatures, info.NumDetections, info.NumClasses, confidence, frame.Width, frame.Height)
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	ticks := p.ticks.Load()
	var avg time.Duration
	if ticks > 0 {
		avg = time.Duration(p.tickNanos.Load() / ticks)
	}
	return PipelineStats{
		Name:       p.name,
		Ticks:      ticks,
		Skipped:    p.skipped.Load(),
		Detections: p.detections.Load(),
		Censored:   p.censored.Load(),
		Overruns:   p.overruns.Load(),
		AvgTick:    avg,
	}
}

func (p *Pipeline) logStats(msg string) {
	if p.logger == nil {
		return
	}
	st := p.Stats()
	p.logger.Debug(msg,
		"ticks", st.Ticks,
		"skipped", st.Skipped,
		"detections", st.Detections,
		"censored", st.Censored,
		"overruns", st.Overruns,
		"avg_tick", st.AvgTick,
	)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
