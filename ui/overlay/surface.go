package overlay

import (
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/soocke/pixel-censor-go/domain/capture"
	"github.com/soocke/pixel-censor-go/domain/censor"
)

// Options configures how frames become displayable surfaces.
type Options struct {
	Key         ColorKey
	SentinelMax int
}

// buildSurface converts frame into a w x h surface in dst. Sentinel pixels
// become the colour key; real pixels that happen to equal the key are nudged
// off it so they stay visible. Frames whose size differs from the surface
// are nearest-neighbour scaled first.
func buildSurface(dst, frame *capture.FrameBuffer, w, h int, opts Options) {
	if frame.Width == w && frame.Height == h {
		dst.CopyFrom(frame)
	} else {
		draw.NearestNeighbor.Scale(dst.RGBAView(), dst.Bounds(), frame.RGBAView(), frame.Bounds(), draw.Src, nil)
	}
	key := opts.Key
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			switch {
			case censor.IsSentinel(row[i], row[i+1], row[i+2], opts.SentinelMax):
				row[i], row[i+1], row[i+2] = key.B, key.G, key.R
			case key.matches(row[i], row[i+1], row[i+2]):
				row[i] ^= 1
			}
			row[i+3] = 0xFF
		}
	}
}

// doubleBuffer holds the surface the paint handler reads. A new surface is
// built off-lock and swapped in under the lock; the previous one is recycled
// only after the swap, so a painter never sees a torn or released buffer.
type doubleBuffer struct {
	mu    sync.Mutex
	front *capture.FrameBuffer
}

// commit publishes back as the front surface.
func (d *doubleBuffer) commit(back *capture.FrameBuffer) {
	d.mu.Lock()
	old := d.front
	d.front = back
	capture.RecycleBuffer(old)
	d.mu.Unlock()
}

// withFront runs fn with the current surface under the lock. fn receives nil
// before the first commit.
func (d *doubleBuffer) withFront(fn func(*capture.FrameBuffer)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.front)
}

// release drops the front surface.
func (d *doubleBuffer) release() {
	d.mu.Lock()
	capture.RecycleBuffer(d.front)
	d.front = nil
	d.mu.Unlock()
}

// render builds a surface for frame at the given size and commits it.
func (d *doubleBuffer) render(frame *capture.FrameBuffer, size image.Point, opts Options) {
	back := capture.AcquireBuffer(size.X, size.Y)
	buildSurface(back, frame, size.X, size.Y, opts)
	d.commit(back)
}
