package capture

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// CaptureTest grabs a single frame from src and writes it to path. The image
// format follows the file extension.
func CaptureTest(src FrameSource, path string) error {
	fb, err := src.Acquire()
	if err != nil {
		return fmt.Errorf("capture test: %w", err)
	}
	if fb.Empty() {
		return ErrEmptyFrame
	}
	if err := imaging.Save(fb.ToRGBA(), path); err != nil {
		return fmt.Errorf("capture test: save %s: %w", path, err)
	}
	return nil
}
