package censor

import (
	"image"

	"github.com/soocke/pixel-censor-go/domain/capture"
)

// ExtractOverlay resets dst to the size of src filled with sentinel black
// (all zero), then copies the pixels of each rect from src.
func ExtractOverlay(dst, src *capture.FrameBuffer, rects []image.Rectangle) {
	if dst.Width != src.Width || dst.Height != src.Height || dst.Stride != src.Width*4 {
		*dst = *capture.NewFrameBuffer(src.Width, src.Height)
	} else {
		clear(dst.Pix)
	}
	for _, r := range rects {
		r = r.Intersect(src.Bounds())
		if r.Empty() {
			continue
		}
		from, _ := src.Region(r)
		to, _ := dst.Region(r)
		to.CopyFrom(from)
	}
}

// IsSentinel reports whether a B,G,R triple falls inside the reserved
// near-black range. The overlay background is pure black, so a negative
// sentinelMax still reserves 0.
func IsSentinel(b, g, r byte, sentinelMax int) bool {
	m := sentinelLimit(sentinelMax)
	return b <= m && g <= m && r <= m
}

func sentinelLimit(sentinelMax int) byte { return byte(max(0, min(sentinelMax, 254))) }

// LiftSentinel nudges real pixels inside rects that fall in the sentinel
// range just above it so the overlay does not key them out.
func LiftSentinel(fb *capture.FrameBuffer, rects []image.Rectangle, sentinelMax int) {
	lift := sentinelLimit(sentinelMax) + 1
	for _, r := range rects {
		r = r.Intersect(fb.Bounds())
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := fb.Pix[fb.Offset(r.Min.X, y):fb.Offset(r.Max.X, y)]
			for i := 0; i < len(row); i += 4 {
				if IsSentinel(row[i], row[i+1], row[i+2], sentinelMax) {
					row[i], row[i+1], row[i+2] = lift, lift, lift
				}
				row[i+3] = 0xFF
			}
		}
	}
}
