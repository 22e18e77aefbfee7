package visualizer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/your-org/mot/pkg/dto"
)

// palette holds the rotation of box colors; a track keeps its color because
// the choice is keyed on the stable ID.
var palette = []color.RGBA{
	{R: 0, G: 200, B: 0, A: 255},
	{R: 230, G: 90, B: 0, A: 255},
	{R: 0, G: 120, B: 230, A: 255},
	{R: 200, G: 0, B: 180, A: 255},
	{R: 220, G: 180, B: 0, A: 255},
	{R: 0, G: 190, B: 190, A: 255},
}

const boxThickness = 2

// Render draws every labeled object onto a copy of the frame: a rectangle
// plus an "ID:<n>" label above its top-left corner.
func Render(frame image.Image, data *dto.LabeledFrame) *image.RGBA {
	bounds := frame.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame, bounds.Min, draw.Src)

	for _, obj := range data.Objects {
		c := palette[obj.ID%len(palette)]
		rect := image.Rect(obj.X, obj.Y, obj.X+obj.W, obj.Y+obj.H)
		drawRect(out, rect, c)

		labelY := obj.Y - 5
		if labelY < bounds.Min.Y+basicfont.Face7x13.Height {
			labelY = obj.Y + basicfont.Face7x13.Height
		}
		drawLabel(out, obj.X, labelY, fmt.Sprintf("ID:%d", obj.ID), c)
	}
	return out
}

// EncodeJPEG renders the overlay and encodes it with the given quality.
func EncodeJPEG(frame image.Image, data *dto.LabeledFrame, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Render(frame, data), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

func drawRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	for t := 0; t < boxThickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			setIfInside(img, x, rect.Min.Y+t, c)
			setIfInside(img, x, rect.Max.Y-1-t, c)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			setIfInside(img, rect.Min.X+t, y, c)
			setIfInside(img, rect.Max.X-1-t, y, c)
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func setIfInside(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}
