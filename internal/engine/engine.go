package engine

import (
	"errors"
	"image"

	"github.com/your-org/mot/internal/track"
)

// ErrBadImage is returned for empty or malformed frames; the pipeline skips
// the frame and continues.
var ErrBadImage = errors.New("engine: bad image")

// FrameSourceInfo describes a frame source for progress display and
// scheduling. TotalFrames is -1 for live sources.
type FrameSourceInfo struct {
	IsLive      bool
	TotalFrames int
	SourceFPS   float64
	SampleFPS   float64
	FrameStep   int
}

// FrameSource supplies a lazy, possibly finite sequence of frames.
type FrameSource interface {
	// HasNext reports whether another frame may be available. Live
	// sources report true until the device fails or closes.
	HasNext() bool
	// Next returns the next frame. io.EOF signals a normal end of
	// stream; any other error marks a single bad frame.
	Next() (image.Image, error)
	// Info returns static source metadata.
	Info() FrameSourceInfo
}

// Detector maps an image to detection boxes. Boxes are in pixel coordinates
// relative to the image's Bounds().Min, so a cropped sub-image yields
// crop-local boxes.
type Detector interface {
	Detect(img image.Image, frameIndex int) ([]track.BoundingBox, error)
}

// Extractor maps an image patch to a fixed-dimensional appearance embedding.
// The caller treats the vector as raw and normalizes on store.
type Extractor interface {
	Extract(patch image.Image) ([]float32, error)
}
