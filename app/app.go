package app

import (
	"context"
	"errors"
	"fmt"
)

// RunHeadless starts the pipeline and blocks until ctx is cancelled or a
// worker faults. A fault is returned so the caller can exit non-zero.
func (c *AppContainer) RunHeadless(ctx context.Context) error {
	faults := make(chan error, 1)
	c.Controller.OnFault(func(err error) {
		select {
		case faults <- err:
		default:
		}
	})
	if err := c.Controller.Start(); err != nil {
		return err
	}
	if c.Logger != nil {
		c.Logger.Info("running headless; interrupt to stop")
	}
	select {
	case <-ctx.Done():
		return c.Controller.Stop()
	case err := <-faults:
		return err
	}
}

// Close stops the pipeline and destroys every overlay window.
func (c *AppContainer) Close() error {
	if c == nil || c.Controller == nil {
		return nil
	}
	err := c.Controller.Close()
	if errors.Is(err, ErrStopTimeout) && c.Logger != nil {
		c.Logger.Warn("workers still running at exit")
	}
	return err
}

// SaveSettings writes the live settings back into the config file at path
// so the next launch starts from them.
func (c *AppContainer) SaveSettings(path string) error {
	s := c.Controller.Settings()
	cfg := *c.Config
	cfg.TargetFPS = s.TargetFPS
	cfg.EnableDetection = s.EnableDetection
	cfg.EnableCensoring = s.EnableCensoring
	cfg.CensorType = s.CensorType.String()
	cfg.Strength = s.Strength
	cfg.Confidence = s.Confidence
	cfg.Targets = s.Targets.Names()
	cfg.HoldLostTracks = s.HoldLostTracks
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("app: save config: %w", err)
	}
	if c.Logger != nil {
		c.Logger.Info("config saved", "path", path)
	}
	return nil
}
