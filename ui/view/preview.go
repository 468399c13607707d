package view

import (
	"image"

	"github.com/soocke/pixel-censor-go/ui/images"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

const (
	maxPreviewW = 400
	maxPreviewH = 225
)

// preview shows the most recent capture-test thumbnail. The previous Tk
// photo is deleted before it is replaced so old pixel data does not pile up.
type preview struct {
	label *LabelWidget
	photo *Img
}

func newPreview(row int) *preview {
	p := &preview{}
	p.photo = NewPhoto(Data(placeholderPNG()))
	p.label = Label(Image(p.photo), Borderwidth(1), Relief("sunken"))
	Grid(p.label, Row(row), Column(0), Columnspan(3), Sticky("we"), Padx("0.4m"), Pady("0.4m"))
	return p
}

// Show replaces the preview with a thumbnail of the image at path.
func (p *preview) Show(path string) error {
	data, err := images.Thumbnail(path, maxPreviewW, maxPreviewH)
	if err != nil {
		return err
	}
	p.set(data)
	return nil
}

func (p *preview) set(data []byte) {
	if p.label == nil {
		return
	}
	if p.photo != nil {
		p.photo.Delete()
	}
	p.photo = NewPhoto(Data(data))
	p.label.Configure(Image(p.photo))
}

func placeholderPNG() []byte {
	return images.EncodePNG(image.NewRGBA(image.Rect(0, 0, 200, 112)))
}
