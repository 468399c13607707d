package presenter

import (
	"fmt"
	"strings"
	"sync"
)

// Controls narrows what the presenter needs from the pipeline controller.
type Controls interface {
	Start() error
	Stop() error
	Running() bool
	UpdateSetting(key string, value any) error
	SetMonitorEnabled(index int, enabled bool) error
	CaptureTest(path string) error
	Summary() string
}

// ControlView is updated by the presenter. All calls happen on the UI thread.
type ControlView interface {
	SetRunning(running bool)
	SetStatus(text string)
	ShowError(text string)
	ShowPreview(path string)
}

// ControlPresenter owns presentation logic for the control panel: toggling
// the pipeline, applying settings and surfacing worker faults.
type ControlPresenter struct {
	ctrl Controls
	view ControlView

	mu      sync.Mutex
	pending error
	running bool
}

func NewControlPresenter(ctrl Controls, view ControlView) *ControlPresenter {
	return &ControlPresenter{ctrl: ctrl, view: view}
}

// Toggle starts a stopped pipeline or stops a running one.
func (p *ControlPresenter) Toggle() {
	if p == nil || p.ctrl == nil || p.view == nil {
		return
	}
	if p.ctrl.Running() {
		if err := p.ctrl.Stop(); err != nil {
			p.view.ShowError(fmt.Sprintf("Stop: %v", err))
		}
	} else if err := p.ctrl.Start(); err != nil {
		p.view.ShowError(fmt.Sprintf("Start: %v", err))
	}
	p.syncRunning(true)
}

// Apply forwards one edited field. The raw text is parsed by the controller.
// It reports whether the value was accepted.
func (p *ControlPresenter) Apply(key, text string) bool {
	if p == nil || p.ctrl == nil || p.view == nil {
		return false
	}
	if err := p.ctrl.UpdateSetting(key, strings.TrimSpace(text)); err != nil {
		p.view.ShowError(err.Error())
		return false
	}
	p.view.SetStatus(fmt.Sprintf("%s updated", key))
	return true
}

// SetMonitor toggles one monitor's overlay.
func (p *ControlPresenter) SetMonitor(index int, enabled bool) {
	if p == nil || p.ctrl == nil || p.view == nil {
		return
	}
	if err := p.ctrl.SetMonitorEnabled(index, enabled); err != nil {
		p.view.ShowError(err.Error())
	}
}

// CaptureTest saves one frame to path and previews it.
func (p *ControlPresenter) CaptureTest(path string) {
	if p == nil || p.ctrl == nil || p.view == nil {
		return
	}
	if err := p.ctrl.CaptureTest(path); err != nil {
		p.view.ShowError(fmt.Sprintf("Capture test: %v", err))
		return
	}
	p.view.ShowPreview(path)
	p.view.SetStatus("Saved " + path)
}

// Fault records a worker failure. Safe to call from any goroutine; the view
// is updated on the next Tick.
func (p *ControlPresenter) Fault(err error) {
	if p == nil || err == nil {
		return
	}
	p.mu.Lock()
	p.pending = err
	p.mu.Unlock()
}

// Tick flushes pending faults and refreshes the status line. The view
// schedules it periodically on the UI thread.
func (p *ControlPresenter) Tick() {
	if p == nil || p.ctrl == nil || p.view == nil {
		return
	}
	p.mu.Lock()
	err := p.pending
	p.pending = nil
	p.mu.Unlock()
	if err != nil {
		p.view.ShowError(fmt.Sprintf("Pipeline stopped: %v", err))
	}
	p.syncRunning(false)
	p.view.SetStatus(p.ctrl.Summary())
}

func (p *ControlPresenter) syncRunning(force bool) {
	r := p.ctrl.Running()
	p.mu.Lock()
	changed := r != p.running
	p.running = r
	p.mu.Unlock()
	if changed || force {
		p.view.SetRunning(r)
	}
}
