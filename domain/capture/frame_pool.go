package capture

import "sync"

// Reusable BGRA buffer pool. Overlay surfaces and per-tick scratch buffers
// are the size of a monitor and churn once per frame; recycling them keeps
// the steady-state heap flat.
//
// Usage: AcquireBuffer(w, h) returns a buffer whose Pix length is exactly
// w*h*4 with Stride w*4. Contents are undefined. Call RecycleBuffer once the
// buffer is no longer referenced.

var bufferPool sync.Pool // stores *FrameBuffer

// AcquireBuffer returns a pooled w x h buffer, allocating when the pool is
// empty or holds a buffer that is too small.
func AcquireBuffer(w, h int) *FrameBuffer {
	if w <= 0 || h <= 0 {
		return &FrameBuffer{}
	}
	needed := w * h * 4
	var fb *FrameBuffer
	if v := bufferPool.Get(); v != nil {
		fb = v.(*FrameBuffer)
	}
	if fb == nil || cap(fb.Pix) < needed {
		return NewFrameBuffer(w, h)
	}
	fb.Pix = fb.Pix[:needed]
	fb.Stride = w * 4
	fb.Width = w
	fb.Height = h
	return fb
}

// RecycleBuffer returns fb to the pool. The caller must not touch fb after.
func RecycleBuffer(fb *FrameBuffer) {
	if fb == nil || fb.Pix == nil {
		return
	}
	bufferPool.Put(fb)
}
