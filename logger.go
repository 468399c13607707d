package main

import (
	"log/slog"
	"os"
)

// NewLogger returns the process JSON logger on stdout. Debug level also
// records the source position of each line.
func NewLogger(level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	return slog.New(h).With("app", "pixel-censor", "pid", os.Getpid())
}
