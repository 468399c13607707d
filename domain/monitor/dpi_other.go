//go:build !windows

package monitor

import "log/slog"

// EnableDPIAwareness is a no-op outside Windows.
func EnableDPIAwareness(*slog.Logger) {}
