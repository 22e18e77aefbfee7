package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/mot/internal/config"
)

// embeddingDim is the output dimension of the OSNet re-id export.
const embeddingDim = 512

// imagenetMean and imagenetStd are the channel statistics the re-id model
// was trained with.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Extractor computes appearance embeddings for image patches through an
// OSNet-style ONNX model. The returned vector is raw; callers normalize on
// store.
type Extractor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	cfg          config.ExtractorConfig
}

// NewExtractor loads the re-id ONNX model. opts may be nil for ORT defaults.
func NewExtractor(cfg config.ExtractorConfig, opts *ort.SessionOptions) (*Extractor, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("extractor: empty model path")
	}

	inputShape := ort.NewShape(1, 3, int64(cfg.InputHeight), int64(cfg.InputWidth))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, embeddingDim)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"images"},
		[]string{"output"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create extractor session: %w", err)
	}

	return &Extractor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		cfg:          cfg,
	}, nil
}

// Extract runs the model on one patch and returns the embedding.
func (e *Extractor) Extract(patch image.Image) ([]float32, error) {
	bounds := patch.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("extractor: empty patch")
	}

	tensorData := normalizedCHW(patch, e.cfg.InputWidth, e.cfg.InputHeight, imagenetMean, imagenetStd)
	copy(e.inputTensor.GetData(), tensorData)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	out := make([]float32, embeddingDim)
	copy(out, e.outputTensor.GetData())
	return out, nil
}

// EmbeddingDim returns the embedding vector dimension.
func (e *Extractor) EmbeddingDim() int { return embeddingDim }

// Close releases the ONNX session and its tensors.
func (e *Extractor) Close() error {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	return nil
}
