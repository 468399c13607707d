package capture

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

type fakeSource struct {
	fb   *FrameBuffer
	err  error
	rect image.Rectangle
}

func (f *fakeSource) Acquire() (*FrameBuffer, error) { return f.fb, f.err }
func (f *fakeSource) Bounds() image.Rectangle        { return f.rect }
func (f *fakeSource) Close() error                   { return nil }

func synthFrame(w, h int) *FrameBuffer {
	fb := NewFrameBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := fb.Offset(x, y)
			fb.Pix[i+0] = byte(x)
			fb.Pix[i+1] = byte(y)
			fb.Pix[i+2] = byte(x + y)
			fb.Pix[i+3] = 0xFF
		}
	}
	return fb
}

func TestRegion_SharesMemoryAndValidates(t *testing.T) {
	fb := synthFrame(8, 6)
	sub, err := fb.Region(image.Rect(2, 1, 5, 4))
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	if sub.Width != 3 || sub.Height != 3 || sub.Stride != fb.Stride {
		t.Fatalf("unexpected view %dx%d stride=%d", sub.Width, sub.Height, sub.Stride)
	}
	sub.Pix[0] = 200
	if fb.Pix[fb.Offset(2, 1)] != 200 {
		t.Fatalf("region should alias parent memory")
	}
	if _, err := fb.Region(image.Rect(6, 0, 9, 2)); !errors.Is(err, ErrInvalidRect) {
		t.Fatalf("expected ErrInvalidRect, got %v", err)
	}
}

func TestToRGBA_SwapsChannels(t *testing.T) {
	fb := NewFrameBuffer(1, 1)
	copy(fb.Pix, []byte{10, 20, 30, 255})
	img := fb.ToRGBA()
	if img.Pix[0] != 30 || img.Pix[1] != 20 || img.Pix[2] != 10 {
		t.Fatalf("unexpected rgba %v", img.Pix[:4])
	}
	back := &FrameBuffer{}
	back.FromRGBA(img)
	if back.Pix[0] != 10 || back.Pix[2] != 30 {
		t.Fatalf("round trip mismatch %v", back.Pix[:4])
	}
}

func TestFillAndClear_ClipToBounds(t *testing.T) {
	fb := NewFrameBuffer(4, 4)
	fb.Fill(image.Rect(2, 2, 10, 10), 1, 2, 3, 4)
	if fb.Pix[fb.Offset(3, 3)+2] != 3 {
		t.Fatalf("fill missed inside pixel")
	}
	if fb.Pix[fb.Offset(1, 1)] != 0 {
		t.Fatalf("fill leaked outside rect")
	}
	fb.Clear(image.Rect(0, 0, 4, 4))
	for _, b := range fb.Pix {
		if b != 0 {
			t.Fatalf("clear left non-zero byte")
		}
	}
}

func TestAcquireBuffer_ReusesPooledBuffer(t *testing.T) {
	fb := AcquireBuffer(10, 10)
	if len(fb.Pix) != 400 || fb.Stride != 40 {
		t.Fatalf("unexpected buffer len=%d stride=%d", len(fb.Pix), fb.Stride)
	}
	RecycleBuffer(fb)
	small := AcquireBuffer(4, 4)
	if len(small.Pix) != 64 || small.Width != 4 {
		t.Fatalf("unexpected resized buffer len=%d w=%d", len(small.Pix), small.Width)
	}
}

func TestCaptureService_CountsCapturesAndFailures(t *testing.T) {
	src := &fakeSource{fb: synthFrame(4, 4), rect: image.Rect(0, 0, 4, 4)}
	svc := NewCaptureService(src, nil)
	if _, err := svc.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	src.fb = &FrameBuffer{}
	if _, err := svc.Acquire(); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
	st := svc.Stats()
	if st.Captures != 1 || st.Failures != 1 || st.Sequence != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if svc.Bounds() != src.rect {
		t.Fatalf("bounds not forwarded")
	}
}

func TestCaptureTest_WritesPNG(t *testing.T) {
	src := &fakeSource{fb: synthFrame(5, 3), rect: image.Rect(0, 0, 5, 3)}
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := CaptureTest(src, path); err != nil {
		t.Fatalf("capture test: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 3 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
}
