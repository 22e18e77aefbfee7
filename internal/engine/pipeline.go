package engine

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/your-org/mot/internal/config"
	"github.com/your-org/mot/internal/observability"
	"github.com/your-org/mot/internal/track"
	"github.com/your-org/mot/pkg/dto"
)

// Pipeline turns a frame source into a lazy stream of labeled frames:
// detect and extract features, then predict all tracks, emit the predicted
// state, and fold the observations back into the track manager for the
// next frame. A detector or extractor failure skips the frame before the
// track manager is touched.
type Pipeline struct {
	source     FrameSource
	detector   Detector
	extractor  Extractor
	tracks     *track.Manager
	roi        RoiGate
	frameIndex int
	lastFrame  image.Image
}

// NewPipeline wires the external collaborators to a fresh track manager.
func NewPipeline(cfg config.EngineConfig, src FrameSource, det Detector, ext Extractor) (*Pipeline, error) {
	mgr, err := track.NewManager(cfg.TrackerMgr)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		source:    src,
		detector:  det,
		extractor: ext,
		tracks:    mgr,
		roi:       NewRoiGate(cfg.Roi),
	}, nil
}

// HasNext reports whether the source may still produce frames.
func (p *Pipeline) HasNext() bool {
	return p.source != nil && p.source.HasNext()
}

// FrameIndex returns the index the next produced frame will carry.
func (p *Pipeline) FrameIndex() int { return p.frameIndex }

// ActiveTracks returns the number of live tracks.
func (p *Pipeline) ActiveTracks() int { return p.tracks.ActiveTracks() }

// LastFrame returns the most recently processed frame, for overlay
// rendering. Valid until the next call to Next.
func (p *Pipeline) LastFrame() image.Image { return p.lastFrame }

// Next produces the next labeled frame into out and reports whether one was
// produced. Transient per-frame failures are logged and skipped without
// consuming a frame index; false means the source is exhausted.
func (p *Pipeline) Next(out *dto.LabeledFrame) bool {
	for {
		if !p.HasNext() {
			return false
		}
		frame, err := p.source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false
			}
			slog.Warn("frame skipped", "frame_index", p.frameIndex, "reason", "source", "error", err)
			observability.FramesSkipped.WithLabelValues("source").Inc()
			continue
		}
		if frame == nil || frame.Bounds().Dx() <= 0 || frame.Bounds().Dy() <= 0 {
			slog.Warn("frame skipped", "frame_index", p.frameIndex, "reason", "bad_image")
			observability.FramesSkipped.WithLabelValues("bad_image").Inc()
			continue
		}
		p.lastFrame = frame

		dets, err := p.observe(frame)
		if err != nil {
			slog.Warn("frame skipped", "frame_index", p.frameIndex, "error", err)
			continue
		}

		// Predict then show: the emitted state is this frame's
		// prediction. The observations only shape the next frame.
		p.tracks.PredictAll()
		p.tracks.FillLabeledFrame(p.frameIndex, out)
		if roiRect := p.roi.PixelRect(frame.Bounds()); !roiRect.Empty() {
			out.Objects = FilterObjects(out.Objects, roiRect)
		}

		if err := p.tracks.Update(dets); err != nil {
			// A feature dimension mismatch poisons the whole
			// association; drop the frame and keep going.
			slog.Warn("frame skipped", "frame_index", p.frameIndex, "reason", "association", "error", err)
			observability.FramesSkipped.WithLabelValues("association").Inc()
			continue
		}

		p.frameIndex++
		observability.FramesProcessed.Inc()
		observability.ObjectsEmitted.Add(float64(len(out.Objects)))
		observability.TracksActive.Set(float64(p.tracks.ActiveTracks()))
		return true
	}
}

// observe runs detection on the (optionally ROI-cropped) frame and extracts
// an appearance feature for every surviving box.
func (p *Pipeline) observe(frame image.Image) ([]track.Detection, error) {
	bounds := frame.Bounds()

	detInput := frame
	offset := bounds.Min
	if roiRect := p.roi.PixelRect(bounds); !roiRect.Empty() {
		detInput = cropImage(frame, roiRect)
		offset = roiRect.Min
	}

	start := time.Now()
	boxes, err := p.detector.Detect(detInput, p.frameIndex)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.FramesSkipped.WithLabelValues("detector").Inc()
		return nil, err
	}
	observability.ObjectsDetected.Add(float64(len(boxes)))

	dets := make([]track.Detection, 0, len(boxes))
	for _, b := range boxes {
		// Back to frame coordinates, clipped to the frame.
		b.X += float32(offset.X)
		b.Y += float32(offset.Y)
		clipped := clipToFrame(b, bounds)
		if clipped.W <= 0 || clipped.H <= 0 {
			continue
		}

		patch := cropImage(frame, image.Rect(
			int(clipped.X), int(clipped.Y),
			int(clipped.X+clipped.W), int(clipped.Y+clipped.H),
		))
		start = time.Now()
		vec, err := p.extractor.Extract(patch)
		observability.InferenceDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
		if err != nil {
			observability.FramesSkipped.WithLabelValues("extractor").Inc()
			return nil, err
		}

		feat := track.Feature(vec)
		if feat.L2Norm() < 1e-12 {
			// A zero-norm embedding can never match; drop just
			// this detection.
			slog.Warn("detection dropped", "frame_index", p.frameIndex, "reason", "zero_feature")
			continue
		}
		dets = append(dets, track.Detection{Box: clipped, Feature: feat})
	}
	return dets, nil
}

func clipToFrame(b track.BoundingBox, frame image.Rectangle) track.BoundingBox {
	x0 := maxf32(b.X, float32(frame.Min.X))
	y0 := maxf32(b.Y, float32(frame.Min.Y))
	x1 := minf32(b.X+b.W, float32(frame.Max.X))
	y1 := minf32(b.Y+b.H, float32(frame.Max.Y))
	b.X = x0
	b.Y = y0
	b.W = x1 - x0
	b.H = y1 - y0
	return b
}

// cropImage returns the sub-image for rect, sharing pixels when the source
// supports it.
func cropImage(img image.Image, rect image.Rectangle) image.Image {
	rect = rect.Intersect(img.Bounds())

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			crop.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return crop
}

func minf32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
