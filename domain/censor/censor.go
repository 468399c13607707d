package censor

import (
	"fmt"
	"strings"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"

	"github.com/soocke/pixel-censor-go/domain/capture"
)

// Kind selects the degradation applied to a censored region.
type Kind int

const (
	Mosaic Kind = iota
	Blur
)

func (k Kind) String() string {
	switch k {
	case Blur:
		return "blur"
	default:
		return "mosaic"
	}
}

// ParseKind accepts "mosaic" or "blur" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mosaic":
		return Mosaic, nil
	case "blur":
		return Blur, nil
	}
	return Mosaic, fmt.Errorf("censor: unknown kind %q", s)
}

// ApplyMosaic pixelates region. It downsamples to
// max(1, w/strength) x max(1, h/strength) with linear filtering and scales
// back up with nearest-neighbour. The result is a new buffer of the same size.
func ApplyMosaic(region *capture.FrameBuffer, strength int) *capture.FrameBuffer {
	if region.Empty() {
		return &capture.FrameBuffer{}
	}
	if strength < 1 {
		strength = 1
	}
	w, h := region.Width, region.Height
	sw, sh := max(1, w/strength), max(1, h/strength)
	small := imaging.Resize(region.RGBAView(), sw, sh, imaging.Linear)
	big := imaging.Resize(small, w, h, imaging.NearestNeighbor)
	return fromPix(big.Pix, big.Stride, w, h)
}

// ApplyBlur box-blurs region with a radius equal to strength.
func ApplyBlur(region *capture.FrameBuffer, strength int) *capture.FrameBuffer {
	if region.Empty() {
		return &capture.FrameBuffer{}
	}
	if strength < 1 {
		strength = 1
	}
	out := blur.Box(region.RGBAView(), float64(strength))
	return fromPix(out.Pix, out.Stride, region.Width, region.Height)
}

// Apply dispatches on kind.
func Apply(region *capture.FrameBuffer, kind Kind, strength int) *capture.FrameBuffer {
	if kind == Blur {
		return ApplyBlur(region, strength)
	}
	return ApplyMosaic(region, strength)
}

// fromPix copies a resampled image back into a tightly packed buffer. The
// resamplers never reorder channels, so the BGRA layout is preserved.
func fromPix(pix []byte, stride, w, h int) *capture.FrameBuffer {
	out := capture.NewFrameBuffer(w, h)
	for y := 0; y < h; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+w*4], pix[y*stride:y*stride+w*4])
	}
	return out
}
