package app

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/soocke/pixel-censor-go/config"
	"github.com/soocke/pixel-censor-go/domain/capture"
	"github.com/soocke/pixel-censor-go/domain/censor"
	"github.com/soocke/pixel-censor-go/domain/detection"
	"github.com/soocke/pixel-censor-go/domain/monitor"
	"github.com/soocke/pixel-censor-go/ui/overlay"
)

// AppContainer assembles the settings store, overlays, detector wiring and
// controller.
type AppContainer struct {
	Config      *config.Config
	Logger      *slog.Logger
	Settings    *SettingsStore
	Coordinator *monitor.Coordinator
	Controller  *Controller
}

var nullDetectorOnce sync.Once

// BuildContainer constructs all components from a validated config. Overlay
// windows are created hidden; nothing captures until Controller.Start.
func BuildContainer(cfg *config.Config, logger *slog.Logger) (*AppContainer, error) {
	monitor.EnableDPIAwareness(logger)

	regions, err := buildRegions(cfg)
	if err != nil {
		return nil, err
	}
	key, err := overlay.ParseColorKey(cfg.TransparencyKey)
	if err != nil {
		return nil, fmt.Errorf("app: transparency key: %w", err)
	}
	opts := overlay.Options{Key: key, SentinelMax: cfg.SentinelMax}
	coord, err := monitor.NewCoordinator(regions, func(r monitor.Region) (monitor.Sink, error) {
		return overlay.New(r.Bounds, opts, logger)
	}, logger)
	if err != nil {
		return nil, err
	}

	decoder := detection.NewDecoder(detection.DecoderOptions{
		InputSize:  cfg.InputSize,
		MinBoxPx:   cfg.MinBoxPx,
		ClassNames: cfg.ClassNames,
		Thresholds: detection.ThresholdsByName(cfg.ClassNames, cfg.NMSThresholds, cfg.NMSDefault),
	}, logger)

	var captureRect image.Rectangle
	if r := cfg.CaptureRect; r != nil {
		captureRect = image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
	}

	settings := NewSettingsStore(SettingsFromConfig(cfg))
	ctrl := NewController(ControllerDeps{
		Settings:    settings,
		Coordinator: coord,
		NewSource:   sourceFactory(logger),
		NewDetector: detectorFactory(cfg, logger),
		Decoder:     decoder,
		Compositor:  censor.NewCompositor(cfg.MinCensorPx, cfg.SentinelMax),
		TrackIoU:    cfg.TrackIoU,
		TrackMaxAge: cfg.TrackMaxAge,
		PerMonitor:  cfg.PerMonitorWorkers && cfg.CaptureRect == nil,
		CaptureRect: captureRect,
		JoinTimeout: time.Duration(cfg.StopJoinTimeoutMs) * time.Millisecond,
		Logger:      logger,
		Enumerate:   func() ([]monitor.Region, error) { return buildRegions(cfg) },
	})
	if logger != nil {
		logger.Info("container built",
			"monitors", len(regions),
			"virtual_bounds", monitor.VirtualBounds(regions).String(),
			"transparency_key", key.String(),
		)
	}
	return &AppContainer{
		Config:      cfg,
		Logger:      logger,
		Settings:    settings,
		Coordinator: coord,
		Controller:  ctrl,
	}, nil
}

// buildRegions enumerates displays, or returns the single configured
// capture rectangle.
func buildRegions(cfg *config.Config) ([]monitor.Region, error) {
	if r := cfg.CaptureRect; r != nil {
		b := image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
		if b.Empty() {
			return nil, fmt.Errorf("app: %w: capture_rect %v", capture.ErrInvalidRect, b)
		}
		return []monitor.Region{{Index: 0, Bounds: b, Enabled: true}}, nil
	}
	return monitor.Enumerate(cfg.Monitors)
}

// sourceFactory uses the desktop source when the request covers the whole
// virtual screen.
func sourceFactory(logger *slog.Logger) SourceFactory {
	return func(r image.Rectangle) (capture.FrameSource, error) {
		if r == capture.VirtualScreen() {
			return capture.NewDesktopSource(logger)
		}
		return capture.NewRectSource(r, logger)
	}
}

func detectorFactory(cfg *config.Config, logger *slog.Logger) DetectorFactory {
	info := detection.ModelInfo{
		InputSize:     cfg.InputSize,
		NumFeatures:   cfg.DetectorFeatures,
		NumDetections: cfg.DetectorNumDetections,
		NumClasses:    len(cfg.ClassNames),
	}
	argv := append([]string(nil), cfg.DetectorCommand...)
	return func() (detection.Detector, error) {
		if len(argv) > 0 {
			return detection.NewProcessDetector(argv, info, logger)
		}
		nullDetectorOnce.Do(func() {
			if logger != nil {
				logger.Warn("no detector_command configured; detection yields nothing")
			}
		})
		return &detection.NullDetector{Info: info}, nil
	}
}
