package detection

import (
	"github.com/disintegration/imaging"

	"github.com/soocke/pixel-censor-go/domain/capture"
)

// Preprocess resizes frame to a size x size square with bilinear filtering
// and writes it into dst as planar RGB (CHW) normalized to 0..1. dst is
// reused when large enough.
func Preprocess(frame *capture.FrameBuffer, size int, dst []float32) []float32 {
	n := size * size
	if cap(dst) < 3*n {
		dst = make([]float32, 3*n)
	}
	dst = dst[:3*n]
	if frame.Empty() || size <= 0 {
		clear(dst)
		return dst
	}
	// Resampling is channel-agnostic, so the BGRA view can be resized as-is.
	resized := imaging.Resize(frame.RGBAView(), size, size, imaging.Linear)
	pix := resized.Pix
	const inv = 1.0 / 255.0
	for y := 0; y < size; y++ {
		row := pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			i := x * 4
			p := y*size + x
			dst[p] = float32(row[i+2]) * inv     // R
			dst[n+p] = float32(row[i+1]) * inv   // G
			dst[2*n+p] = float32(row[i+0]) * inv // B
		}
	}
	return dst
}
