package monitor

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/soocke/pixel-censor-go/domain/capture"
)

// Sink displays frames for one monitor. The overlay renderer implements it.
type Sink interface {
	Show()
	Hide()
	UpdateFrame(frame *capture.FrameBuffer) error
	SetMonitorBounds(bounds image.Rectangle)
	Visible() bool
	Close() error
}

// SinkFactory creates the sink owned by a region.
type SinkFactory func(Region) (Sink, error)

// Display is what a pipeline renders into: either the whole coordinator or a
// single-monitor view of it.
type Display interface {
	Dispatch(frame *capture.FrameBuffer, origin image.Point) error
	Visible() bool
	Active() bool
}

type slot struct {
	region Region
	sink   Sink
}

// Coordinator owns one sink per monitor and fans captured frames out to the
// enabled ones.
type Coordinator struct {
	mu      sync.Mutex
	slots   []*slot
	shown   bool
	factory SinkFactory
	logger  *slog.Logger
}

// NewCoordinator creates a sink for every region. On failure any sinks
// already created are closed.
func NewCoordinator(regions []Region, factory SinkFactory, logger *slog.Logger) (*Coordinator, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("monitor: no regions")
	}
	c := &Coordinator{factory: factory, logger: logger}
	for _, r := range regions {
		s, err := factory(r)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("monitor %d: create overlay: %w", r.Index, err)
		}
		c.slots = append(c.slots, &slot{region: r, sink: s})
	}
	return c, nil
}

// Regions returns a snapshot of the managed regions.
func (c *Coordinator) Regions() []Region {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Region, len(c.slots))
	for i, s := range c.slots {
		out[i] = s.region
	}
	return out
}

// Show makes every enabled monitor's overlay visible.
func (c *Coordinator) Show() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = true
	for _, s := range c.slots {
		if s.region.Enabled {
			s.sink.Show()
		}
	}
}

// Hide withdraws all overlays.
func (c *Coordinator) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = false
	for _, s := range c.slots {
		s.sink.Hide()
	}
}

// SetEnabled toggles one monitor without affecting the others.
func (c *Coordinator) SetEnabled(index int, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.find(index)
	if s == nil {
		return fmt.Errorf("monitor: unknown index %d", index)
	}
	if s.region.Enabled == enabled {
		return nil
	}
	s.region.Enabled = enabled
	switch {
	case !enabled:
		s.sink.Hide()
	case c.shown:
		s.sink.Show()
	}
	if c.logger != nil {
		c.logger.Info("monitor toggled", "monitor", index, "enabled", enabled)
	}
	return nil
}

// Refresh applies a fresh display enumeration. Known monitors whose bounds
// moved get SetMonitorBounds and keep their enabled state; new monitors get
// a sink, shown if the group is visible; sinks of monitors that disappeared
// are closed. It reports whether anything changed.
func (c *Coordinator) Refresh(regions []Region) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[int]bool, len(regions))
	changed := false
	var errs []error
	for _, r := range regions {
		seen[r.Index] = true
		s := c.find(r.Index)
		if s == nil {
			if c.factory == nil {
				errs = append(errs, fmt.Errorf("monitor %d: no sink factory", r.Index))
				continue
			}
			sink, err := c.factory(r)
			if err != nil {
				errs = append(errs, fmt.Errorf("monitor %d: create overlay: %w", r.Index, err))
				continue
			}
			c.slots = append(c.slots, &slot{region: r, sink: sink})
			if c.shown && r.Enabled {
				sink.Show()
			}
			changed = true
			c.logRefresh("monitor added", r)
			continue
		}
		if s.region.Bounds != r.Bounds {
			s.region.Bounds = r.Bounds
			s.sink.SetMonitorBounds(r.Bounds)
			changed = true
			c.logRefresh("monitor moved", s.region)
		}
	}
	kept := c.slots[:0]
	for _, s := range c.slots {
		if seen[s.region.Index] {
			kept = append(kept, s)
			continue
		}
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("monitor %d: close overlay: %w", s.region.Index, err))
		}
		changed = true
		c.logRefresh("monitor removed", s.region)
	}
	c.slots = kept
	return changed, errors.Join(errs...)
}

func (c *Coordinator) logRefresh(msg string, r Region) {
	if c.logger != nil {
		c.logger.Info(msg, "monitor", r.Index, "bounds", r.Bounds.String())
	}
}

// Dispatch extracts each enabled monitor's sub-rectangle from frame, whose
// top-left corner sits at origin in virtual-desktop coordinates, and hands it
// to that monitor's sink. Monitors that do not fit inside the
// frame are skipped and reported in the joined error.
func (c *Coordinator) Dispatch(frame *capture.FrameBuffer, origin image.Point) error {
	var errs []error
	for _, s := range c.enabled(-1) {
		if err := dispatchOne(s, frame, origin); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// enabled snapshots the enabled slots, all of them when index is negative.
// Sinks synchronize internally, so frames are handed over without holding
// the coordinator lock.
func (c *Coordinator) enabled(index int) []slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []slot
	for _, s := range c.slots {
		if s.region.Enabled && (index < 0 || s.region.Index == index) {
			out = append(out, *s)
		}
	}
	return out
}

func dispatchOne(s slot, frame *capture.FrameBuffer, origin image.Point) error {
	view, err := frame.Region(s.region.Local(origin))
	if err != nil {
		return fmt.Errorf("monitor %d: %w", s.region.Index, err)
	}
	if err := s.sink.UpdateFrame(view); err != nil {
		return fmt.Errorf("monitor %d: %w", s.region.Index, err)
	}
	return nil
}

// Visible reports whether every enabled overlay is still visible. With no
// monitor enabled there is nothing to dismiss and it reports true.
func (c *Coordinator) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.slots {
		if s.region.Enabled && !s.sink.Visible() {
			return false
		}
	}
	return true
}

// Active reports whether any monitor is enabled.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.slots {
		if s.region.Enabled {
			return true
		}
	}
	return false
}

// Monitor returns a Display limited to one monitor, for per-monitor workers.
func (c *Coordinator) Monitor(index int) (Display, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.find(index) == nil {
		return nil, fmt.Errorf("monitor: unknown index %d", index)
	}
	return &single{c: c, index: index}, nil
}

// Close closes every sink.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, s := range c.slots {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.slots = nil
	return errors.Join(errs...)
}

func (c *Coordinator) find(index int) *slot {
	for _, s := range c.slots {
		if s.region.Index == index {
			return s
		}
	}
	return nil
}

type single struct {
	c     *Coordinator
	index int
}

func (d *single) Dispatch(frame *capture.FrameBuffer, origin image.Point) error {
	slots := d.c.enabled(d.index)
	if len(slots) == 0 {
		return nil
	}
	return dispatchOne(slots[0], frame, origin)
}

func (d *single) Visible() bool {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	s := d.c.find(d.index)
	return s == nil || !s.region.Enabled || s.sink.Visible()
}

func (d *single) Active() bool {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	s := d.c.find(d.index)
	return s != nil && s.region.Enabled
}
