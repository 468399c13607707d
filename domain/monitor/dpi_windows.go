//go:build windows

package monitor

import (
	"log/slog"
	"sync"

	"golang.org/x/sys/windows"
)

var (
	user32                            = windows.NewLazySystemDLL("user32.dll")
	shcore                            = windows.NewLazySystemDLL("shcore.dll")
	procSetProcessDpiAwarenessContext = user32.NewProc("SetProcessDpiAwarenessContext")
	procSetProcessDPIAware            = user32.NewProc("SetProcessDPIAware")
	procSetProcessDpiAwareness        = shcore.NewProc("SetProcessDpiAwareness")
)

var dpiOnce sync.Once

const processPerMonitorDpiAware = 2

// dpiAwarenessContextPerMonitorAwareV2 is DPI_AWARENESS_CONTEXT_PER_MONITOR_AWARE_V2 ((HANDLE)-4).
var dpiAwarenessContextPerMonitorAwareV2 = ^uintptr(3)

// EnableDPIAwareness opts the process into per-monitor DPI awareness so
// display bounds and capture coordinates are physical pixels. It tries the
// newest API first and falls back on older systems. Runs once per process.
func EnableDPIAwareness(logger *slog.Logger) {
	dpiOnce.Do(func() {
		if procSetProcessDpiAwarenessContext.Find() == nil {
			if r, _, _ := procSetProcessDpiAwarenessContext.Call(dpiAwarenessContextPerMonitorAwareV2); r != 0 {
				logDPI(logger, "per_monitor_v2")
				return
			}
		}
		if procSetProcessDpiAwareness.Find() == nil {
			// S_OK is 0.
			if r, _, _ := procSetProcessDpiAwareness.Call(processPerMonitorDpiAware); r == 0 {
				logDPI(logger, "per_monitor")
				return
			}
		}
		if procSetProcessDPIAware.Find() == nil {
			if r, _, _ := procSetProcessDPIAware.Call(); r != 0 {
				logDPI(logger, "system")
				return
			}
		}
		if logger != nil {
			logger.Warn("dpi awareness unavailable; monitor bounds may be scaled")
		}
	})
}

func logDPI(logger *slog.Logger, mode string) {
	if logger != nil {
		logger.Debug("dpi awareness enabled", "mode", mode)
	}
}
