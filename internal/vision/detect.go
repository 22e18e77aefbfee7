package vision

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/mot/internal/config"
	"github.com/your-org/mot/internal/track"
)

// cocoClasses is the class count of the standard YOLO COCO export; the
// output head carries 4 box attributes plus one score per class and no
// separate objectness.
const cocoClasses = 80

// Detector runs a YOLO object detection model through ONNX Runtime and
// returns boxes in pixel coordinates relative to the input image's origin.
type Detector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	cfg          config.DetectorConfig
	focusClasses map[int]struct{}
	numPreds     int
	attrCount    int
}

// NewDetector loads the YOLO ONNX model. opts may be nil for ORT defaults.
func NewDetector(cfg config.DetectorConfig, opts *ort.SessionOptions) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("detector: empty model path")
	}

	inputShape := ort.NewShape(1, 3, int64(cfg.InputHeight), int64(cfg.InputWidth))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Prediction count for the standard stride-8/16/32 head.
	numPreds := (cfg.InputWidth/8)*(cfg.InputHeight/8) +
		(cfg.InputWidth/16)*(cfg.InputHeight/16) +
		(cfg.InputWidth/32)*(cfg.InputHeight/32)
	attrCount := 4 + cocoClasses

	outputShape := ort.NewShape(1, int64(attrCount), int64(numPreds))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	var focus map[int]struct{}
	if len(cfg.FocusClassIDs) > 0 {
		focus = make(map[int]struct{}, len(cfg.FocusClassIDs))
		for _, id := range cfg.FocusClassIDs {
			focus[id] = struct{}{}
		}
	}

	return &Detector{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		cfg:          cfg,
		focusClasses: focus,
		numPreds:     numPreds,
		attrCount:    attrCount,
	}, nil
}

// Detect runs the model on img and returns the decoded, NMS-filtered boxes.
func (d *Detector) Detect(img image.Image, frameIndex int) ([]track.BoundingBox, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("detector: empty image")
	}

	tensorData, lb := letterboxToCHW(img, d.cfg.InputWidth, d.cfg.InputHeight)
	copy(d.inputTensor.GetData(), tensorData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	candidates := d.decode(d.outputTensor.GetData(), lb, bounds.Dx(), bounds.Dy())
	return nmsSameClass(candidates, d.cfg.NMSThreshold), nil
}

// decode reads the channels-first [attrs, preds] head, keeps predictions
// above the score threshold and inside the class whitelist, and maps boxes
// back through the letterbox into source pixels.
func (d *Detector) decode(data []float32, lb letterbox, srcW, srcH int) []track.BoundingBox {
	var out []track.BoundingBox
	value := func(pred, attr int) float32 {
		return data[attr*d.numPreds+pred]
	}

	for i := 0; i < d.numPreds; i++ {
		bestScore := float32(0)
		bestClass := -1
		for c := 4; c < d.attrCount; c++ {
			if s := value(i, c); s > bestScore {
				bestScore = s
				bestClass = c - 4
			}
		}
		if bestScore < d.cfg.ScoreThreshold {
			continue
		}
		if d.focusClasses != nil {
			if _, ok := d.focusClasses[bestClass]; !ok {
				continue
			}
		}

		cx := value(i, 0)
		cy := value(i, 1)
		w := value(i, 2)
		h := value(i, 3)

		x0 := (cx - w/2 - lb.padX) / lb.scale
		y0 := (cy - h/2 - lb.padY) / lb.scale
		x1 := (cx + w/2 - lb.padX) / lb.scale
		y1 := (cy + h/2 - lb.padY) / lb.scale

		touchesEdge := x0 <= 0 || y0 <= 0 || x1 >= float32(srcW) || y1 >= float32(srcH)

		x0 = clampf(x0, 0, float32(srcW))
		y0 = clampf(y0, 0, float32(srcH))
		x1 = clampf(x1, 0, float32(srcW))
		y1 = clampf(y1, 0, float32(srcH))
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		if d.cfg.FilterEdgeBoxes && touchesEdge {
			continue
		}

		out = append(out, track.BoundingBox{
			X:       x0,
			Y:       y0,
			W:       x1 - x0,
			H:       y1 - y0,
			ClassID: bestClass,
			Score:   bestScore,
		})
	}
	return out
}

// Close releases the ONNX session and its tensors.
func (d *Detector) Close() error {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
	}
	return nil
}

// nmsSameClass suppresses lower-scored boxes of the same class whose IoU
// with a kept box exceeds the threshold.
func nmsSameClass(boxes []track.BoundingBox, iouThreshold float32) []track.BoundingBox {
	if len(boxes) == 0 {
		return boxes
	}

	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return boxes[order[a]].Score > boxes[order[b]].Score
	})

	suppressed := make([]bool, len(boxes))
	var kept []track.BoundingBox
	for i, idx := range order {
		if suppressed[idx] {
			continue
		}
		kept = append(kept, boxes[idx])
		for _, next := range order[i+1:] {
			if suppressed[next] || boxes[next].ClassID != boxes[idx].ClassID {
				continue
			}
			if track.IoU(boxes[idx], boxes[next]) > iouThreshold {
				suppressed[next] = true
			}
		}
	}
	return kept
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
