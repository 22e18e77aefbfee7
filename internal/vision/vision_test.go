package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mot/internal/config"
	"github.com/your-org/mot/internal/track"
)

func bb(x, y, w, h, score float32, classID int) track.BoundingBox {
	return track.BoundingBox{X: x, Y: y, W: w, H: h, Score: score, ClassID: classID}
}

func TestNMSSameClass(t *testing.T) {
	boxes := []track.BoundingBox{
		bb(0, 0, 10, 10, 0.9, 0),
		bb(1, 0, 10, 10, 0.8, 0),   // heavy overlap with the first, same class
		bb(1, 0, 10, 10, 0.7, 1),   // same overlap, different class: kept
		bb(50, 50, 10, 10, 0.6, 0), // far away: kept
	}

	kept := nmsSameClass(boxes, 0.5)
	require.Len(t, kept, 3)
	assert.Equal(t, float32(0.9), kept[0].Score, "highest score first")
	for _, k := range kept {
		assert.NotEqual(t, float32(0.8), k.Score)
	}
}

func TestNMSKeepsAllBelowThreshold(t *testing.T) {
	boxes := []track.BoundingBox{
		bb(0, 0, 10, 10, 0.9, 0),
		bb(8, 8, 10, 10, 0.8, 0), // small overlap
	}
	kept := nmsSameClass(boxes, 0.5)
	assert.Len(t, kept, 2)
}

func TestNMSEmpty(t *testing.T) {
	assert.Empty(t, nmsSameClass(nil, 0.5))
}

func TestLetterboxPreservesAspect(t *testing.T) {
	// A wide red image letterboxed into a square: gray bars above and
	// below, red in the middle.
	src := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	data, lb := letterboxToCHW(src, 8, 8)
	require.Len(t, data, 3*8*8)
	assert.InDelta(t, 1.0, float64(lb.scale), 1e-6)
	assert.Equal(t, float32(0), lb.padX)
	assert.Equal(t, float32(2), lb.padY)

	gray := float32(114.0 / 255.0)
	// Top padding row stays gray in all channels.
	assert.InDelta(t, float64(gray), float64(data[0*8+3]), 1e-4)
	// Center row is red: R channel 1, G channel 0.
	centerIdx := 4*8 + 3
	assert.InDelta(t, 1.0, float64(data[centerIdx]), 1e-4)
	assert.InDelta(t, 0.0, float64(data[64+centerIdx]), 1e-4)
}

func TestLetterboxDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 32))
	_, lb := letterboxToCHW(src, 32, 32)
	assert.InDelta(t, 0.5, float64(lb.scale), 1e-6)
	assert.Equal(t, float32(0), lb.padX)
	assert.Equal(t, float32(8), lb.padY)
}

func TestNormalizedCHW(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 255, G: 128, B: 0, A: 255})
		}
	}

	mean := [3]float32{0.5, 0.5, 0.5}
	std := [3]float32{0.5, 0.5, 0.5}
	data := normalizedCHW(src, 2, 2, mean, std)
	require.Len(t, data, 12)
	assert.InDelta(t, 1.0, float64(data[0]), 1e-3)   // R: (1-0.5)/0.5
	assert.InDelta(t, 0.0, float64(data[4]), 2e-2)   // G: ~0.5 normalized
	assert.InDelta(t, -1.0, float64(data[8]), 1e-3)  // B: (0-0.5)/0.5
}

// testDetector builds a decode-only detector; no ONNX session is needed.
func testDetector(cfg config.DetectorConfig) *Detector {
	numPreds := (cfg.InputWidth/8)*(cfg.InputHeight/8) +
		(cfg.InputWidth/16)*(cfg.InputHeight/16) +
		(cfg.InputWidth/32)*(cfg.InputHeight/32)
	var focus map[int]struct{}
	if len(cfg.FocusClassIDs) > 0 {
		focus = make(map[int]struct{})
		for _, id := range cfg.FocusClassIDs {
			focus[id] = struct{}{}
		}
	}
	return &Detector{
		cfg:          cfg,
		focusClasses: focus,
		numPreds:     numPreds,
		attrCount:    4 + cocoClasses,
	}
}

// rawOutput builds a zeroed [attrs, preds] tensor and plants predictions.
type rawOutput struct {
	d    *Detector
	data []float32
}

func newRawOutput(d *Detector) *rawOutput {
	return &rawOutput{d: d, data: make([]float32, d.attrCount*d.numPreds)}
}

// plant writes one prediction in model-input coordinates (cx, cy, w, h).
func (r *rawOutput) plant(pred int, cx, cy, w, h float32, class int, score float32) {
	r.data[0*r.d.numPreds+pred] = cx
	r.data[1*r.d.numPreds+pred] = cy
	r.data[2*r.d.numPreds+pred] = w
	r.data[3*r.d.numPreds+pred] = h
	r.data[(4+class)*r.d.numPreds+pred] = score
}

func TestDecodeMapsThroughLetterbox(t *testing.T) {
	d := testDetector(config.DetectorConfig{
		InputWidth: 640, InputHeight: 640,
		ScoreThreshold: 0.5, NMSThreshold: 0.7,
	})

	// 1280x640 source: scale 0.5, padY 160.
	raw := newRawOutput(d)
	raw.plant(0, 320, 320, 100, 80, 2, 0.9)

	boxes := d.decode(raw.data, letterbox{scale: 0.5, padX: 0, padY: 160}, 1280, 640)
	require.Len(t, boxes, 1)
	b := boxes[0]
	assert.InDelta(t, (320.0-50.0)/0.5, float64(b.X), 1e-3)
	assert.InDelta(t, (320.0-40.0-160.0)/0.5, float64(b.Y), 1e-3)
	assert.InDelta(t, 200, float64(b.W), 1e-3)
	assert.InDelta(t, 160, float64(b.H), 1e-3)
	assert.Equal(t, 2, b.ClassID)
	assert.Equal(t, float32(0.9), b.Score)
}

func TestDecodeScoreThreshold(t *testing.T) {
	d := testDetector(config.DetectorConfig{
		InputWidth: 640, InputHeight: 640,
		ScoreThreshold: 0.5,
	})
	raw := newRawOutput(d)
	raw.plant(0, 320, 320, 50, 50, 0, 0.4)

	boxes := d.decode(raw.data, letterbox{scale: 1}, 640, 640)
	assert.Empty(t, boxes)
}

func TestDecodeFocusClasses(t *testing.T) {
	d := testDetector(config.DetectorConfig{
		InputWidth: 640, InputHeight: 640,
		ScoreThreshold: 0.5,
		FocusClassIDs:  []int{0},
	})
	raw := newRawOutput(d)
	raw.plant(0, 100, 100, 50, 50, 0, 0.9)
	raw.plant(1, 300, 300, 50, 50, 7, 0.9)

	boxes := d.decode(raw.data, letterbox{scale: 1}, 640, 640)
	require.Len(t, boxes, 1)
	assert.Equal(t, 0, boxes[0].ClassID)
}

func TestDecodeEdgeBoxFilter(t *testing.T) {
	cfg := config.DetectorConfig{
		InputWidth: 640, InputHeight: 640,
		ScoreThreshold: 0.5,
		FilterEdgeBoxes: true,
	}
	d := testDetector(cfg)
	raw := newRawOutput(d)
	raw.plant(0, 10, 320, 40, 40, 0, 0.9) // spills over the left border
	raw.plant(1, 320, 320, 40, 40, 0, 0.9)

	boxes := d.decode(raw.data, letterbox{scale: 1}, 640, 640)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 300, float64(boxes[0].X), 1e-3)

	cfg.FilterEdgeBoxes = false
	d = testDetector(cfg)
	boxes = d.decode(raw.data, letterbox{scale: 1}, 640, 640)
	assert.Len(t, boxes, 2, "edge boxes kept when the filter is off")
}
