package capture

import (
	"image"
	"log/slog"
	"sync/atomic"
	"time"
)

const captureStatsLogInterval = 5 * time.Second

// CaptureService wraps a FrameSource with instrumentation. It satisfies
// FrameSource itself so the pipeline can use it transparently.
type CaptureService struct {
	src          FrameSource
	logger       *slog.Logger
	captures     atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	lastCapture  atomic.Int64 // unix nanos
	lastLog      atomic.Int64
}

// NewCaptureService constructs an instrumented wrapper around src.
func NewCaptureService(src FrameSource, logger *slog.Logger) *CaptureService {
	s := &CaptureService{src: src, logger: logger}
	s.lastLog.Store(time.Now().UnixNano())
	return s
}

// Acquire grabs one frame from the wrapped source and records timing.
func (s *CaptureService) Acquire() (*FrameBuffer, error) {
	start := time.Now()
	fb, err := s.src.Acquire()
	if err == nil && fb.Empty() {
		err = ErrEmptyFrame
	}
	if err != nil {
		s.failures.Add(1)
		s.maybeLogStats()
		return nil, err
	}
	s.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	s.captures.Add(1)
	s.sequence.Add(1)
	s.lastCapture.Store(time.Now().UnixNano())
	s.maybeLogStats()
	return fb, nil
}

func (s *CaptureService) Bounds() image.Rectangle { return s.src.Bounds() }

func (s *CaptureService) Close() error { return s.src.Close() }

// Stats returns a snapshot of capture counters.
func (s *CaptureService) Stats() CaptureStats {
	captures := s.captures.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	age := time.Duration(0)
	if ns := s.lastCapture.Load(); ns != 0 {
		last = time.Unix(0, ns)
		age = time.Since(last)
	}
	return CaptureStats{
		Captures:         captures,
		Failures:         s.failures.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
		LatestFrameAge:   age,
		Sequence:         s.sequence.Load(),
	}
}

func (s *CaptureService) maybeLogStats() {
	if s.logger == nil {
		return
	}
	now := time.Now().UnixNano()
	prev := s.lastLog.Load()
	if time.Duration(now-prev) < captureStatsLogInterval || !s.lastLog.CompareAndSwap(prev, now) {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
		"age", stats.LatestFrameAge,
	)
}
