//go:build !windows

package overlay

import (
	"image"
	"log/slog"
)

func newWindow(image.Rectangle, Options, *slog.Logger) (Renderer, error) {
	return nil, errUnsupported
}
