package vision

import (
	"image"
	"image/color"
)

// letterbox describes how a frame was fitted into the model input so that
// detections can be mapped back to source coordinates.
type letterbox struct {
	scale float32
	padX  float32
	padY  float32
}

// letterboxToCHW resizes img into a targetW×targetH canvas, preserving the
// aspect ratio and padding the remainder with neutral gray, then converts to
// RGB CHW float32 in [0, 1].
func letterboxToCHW(img image.Image, targetW, targetH int) ([]float32, letterbox) {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	scale := float32(targetW) / float32(srcW)
	if s := float32(targetH) / float32(srcH); s < scale {
		scale = s
	}
	resizeW := int(float32(srcW)*scale + 0.5)
	resizeH := int(float32(srcH)*scale + 0.5)
	padX := (targetW - resizeW) / 2
	padY := (targetH - resizeH) / 2

	const gray = float32(114.0 / 255.0)
	planeSize := targetW * targetH
	data := make([]float32, 3*planeSize)
	for i := range data {
		data[i] = gray
	}

	sample := newSampler(img)
	for y := 0; y < resizeH; y++ {
		srcY := bounds.Min.Y + y*srcH/resizeH
		for x := 0; x < resizeW; x++ {
			srcX := bounds.Min.X + x*srcW/resizeW
			r, g, b := sample(srcX, srcY)
			idx := (y+padY)*targetW + (x + padX)
			data[idx] = float32(r) / 255
			data[planeSize+idx] = float32(g) / 255
			data[2*planeSize+idx] = float32(b) / 255
		}
	}

	return data, letterbox{scale: scale, padX: float32(padX), padY: float32(padY)}
}

// normalizedCHW resizes img to targetW×targetH (no aspect preservation) and
// converts to RGB CHW float32, normalizing each channel as (v - mean) / std.
func normalizedCHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	planeSize := targetW * targetH
	data := make([]float32, 3*planeSize)

	sample := newSampler(img)
	for y := 0; y < targetH; y++ {
		srcY := bounds.Min.Y + y*srcH/targetH
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			r, g, b := sample(srcX, srcY)
			idx := y*targetW + x
			data[idx] = (float32(r)/255 - mean[0]) / std[0]
			data[planeSize+idx] = (float32(g)/255 - mean[1]) / std[1]
			data[2*planeSize+idx] = (float32(b)/255 - mean[2]) / std[2]
		}
	}
	return data
}

// newSampler returns a pixel reader with fast paths for the common decoded
// image types; the generic interface path handles the rest.
func newSampler(img image.Image) func(x, y int) (uint8, uint8, uint8) {
	switch src := img.(type) {
	case *image.RGBA:
		return func(x, y int) (uint8, uint8, uint8) {
			off := src.PixOffset(x, y)
			pix := src.Pix[off : off+3 : off+3]
			return pix[0], pix[1], pix[2]
		}
	case *image.YCbCr:
		return func(x, y int) (uint8, uint8, uint8) {
			yi := src.YOffset(x, y)
			ci := src.COffset(x, y)
			return color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
		}
	default:
		return func(x, y int) (uint8, uint8, uint8) {
			r, g, b, _ := img.At(x, y).RGBA()
			return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
		}
	}
}
