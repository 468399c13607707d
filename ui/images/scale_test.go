package images

import (
	"bytes"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestScaleToFit_PreservesAspect(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	out := ScaleToFit(src, 400, 225)
	if b := out.Bounds(); b.Dx() != 400 || b.Dy() != 225 {
		t.Fatalf("got %dx%d want 400x225", b.Dx(), b.Dy())
	}
	tall := image.NewRGBA(image.Rect(0, 0, 100, 400))
	if b := ScaleToFit(tall, 400, 200).Bounds(); b.Dy() != 200 || b.Dx() != 50 {
		t.Fatalf("tall: got %dx%d want 50x200", b.Dx(), b.Dy())
	}
}

func TestScaleToFit_SmallSourceUnchanged(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if ScaleToFit(src, 100, 100) != image.Image(src) {
		t.Fatalf("expected original image when it already fits")
	}
	if ScaleToFit(nil, 1, 1) != nil {
		t.Fatalf("nil in, nil out")
	}
}

func TestThumbnail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := imaging.Save(image.NewRGBA(image.Rect(0, 0, 800, 400)), path); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := Thumbnail(path, 200, 200)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("got %dx%d want 200x100", b.Dx(), b.Dy())
	}
	if _, err := Thumbnail(filepath.Join(t.TempDir(), "missing.png"), 10, 10); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
