package engine

import (
	"image"
	"math"

	"github.com/your-org/mot/internal/config"
	"github.com/your-org/mot/pkg/dto"
)

// RoiGate restricts where the pipeline acts: detection runs on the region's
// sub-image, and emitted objects must have their box center inside the
// region. Disabled, it is a no-op on both paths.
type RoiGate struct {
	cfg config.RoiConfig
}

// NewRoiGate wraps a validated ROI configuration.
func NewRoiGate(cfg config.RoiConfig) RoiGate {
	return RoiGate{cfg: cfg}
}

// Enabled reports whether the gate does anything.
func (g RoiGate) Enabled() bool { return g.cfg.Enabled }

// PixelRect converts the normalized region to a pixel rectangle clipped to
// the frame. The zero rectangle means "whole frame" (gate disabled or a
// degenerate region).
func (g RoiGate) PixelRect(frame image.Rectangle) image.Rectangle {
	if !g.cfg.Enabled || frame.Dx() <= 0 || frame.Dy() <= 0 {
		return image.Rectangle{}
	}

	x := clamp01(g.cfg.X)
	y := clamp01(g.cfg.Y)
	w := clamp01(g.cfg.W)
	h := clamp01(g.cfg.H)
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}

	fw := float64(frame.Dx())
	fh := float64(frame.Dy())
	px := frame.Min.X + int(math.Round(float64(x)*fw))
	py := frame.Min.Y + int(math.Round(float64(y)*fh))
	pw := int(math.Round(float64(w) * fw))
	ph := int(math.Round(float64(h) * fh))

	r := image.Rect(px, py, px+pw, py+ph).Intersect(frame)
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return image.Rectangle{}
	}
	return r
}

// ContainsCenter reports whether the point is strictly inside the rectangle.
// The center-point test, rather than area overlap, keeps boxes straddling
// the boundary from flickering in and out.
func ContainsCenter(r image.Rectangle, cx, cy float64) bool {
	return cx > float64(r.Min.X) && cx < float64(r.Max.X) &&
		cy > float64(r.Min.Y) && cy < float64(r.Max.Y)
}

// FilterObjects drops objects whose box center falls outside the rectangle,
// in place. A zero rectangle keeps everything.
func FilterObjects(objs []dto.LabeledObject, r image.Rectangle) []dto.LabeledObject {
	if r.Empty() {
		return objs
	}
	kept := objs[:0]
	for _, obj := range objs {
		cx := float64(obj.X) + float64(obj.W)*0.5
		cy := float64(obj.Y) + float64(obj.H)*0.5
		if ContainsCenter(r, cx, cy) {
			kept = append(kept, obj)
		}
	}
	return kept
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
