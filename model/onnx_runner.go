package model

import (
	"fmt"
	"math"
	"math/rand"

	ort "github.com/yalue/onnxruntime_go"

	"text-completion-go/engine"
)

// onnxRunner implements engine.ModelRunner on top of ONNX Runtime, CPU only.
type onnxRunner struct {
	modelPath   string
	vocabSize   int
	threads     int
	initialized bool
}

func newONNXRunner(modelPath string, vocabSize int) (*onnxRunner, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	if vocabSize <= 0 {
		return nil, fmt.Errorf("vocab size must be known before building the runner")
	}

	fmt.Printf("✓ ONNX runtime initialized (%s)\n", modelPath)
	return &onnxRunner{
		modelPath:   modelPath,
		vocabSize:   vocabSize,
		threads:     4,
		initialized: true,
	}, nil
}

// Run feeds each sequence's full token window through the model and samples
// the next token from the last position's logits.
func (m *onnxRunner) Run(seqs []*engine.Sequence, isPrefill bool) ([]int, error) {
	if !m.initialized {
		return nil, fmt.Errorf("model runner not initialized")
	}
	if len(seqs) == 0 {
		return nil, fmt.Errorf("no sequences to process")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(m.threads); err != nil {
		return nil, fmt.Errorf("failed to set threads: %w", err)
	}

	tokenIDs := make([]int, len(seqs))
	for i, seq := range seqs {
		next, err := m.runSequence(seq, options)
		if err != nil {
			return nil, err
		}
		tokenIDs[i] = next
	}

	return tokenIDs, nil
}

func (m *onnxRunner) runSequence(seq *engine.Sequence, options *ort.SessionOptions) (int, error) {
	inputIDs := seq.TokenIDs
	if len(inputIDs) == 0 {
		return 0, fmt.Errorf("sequence %d has no tokens", seq.SeqID)
	}

	inputShape := ort.NewShape(1, int64(len(inputIDs)))
	inputData := make([]int64, len(inputIDs))
	for j, id := range inputIDs {
		inputData[j] = int64(id)
	}

	inputTensor, err := ort.NewTensor(inputShape, inputData)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputShape := ort.NewShape(1, int64(len(inputIDs)), int64(m.vocabSize))
	outputData := make([]float32, len(inputIDs)*m.vocabSize)
	outputTensor, err := ort.NewTensor(outputShape, outputData)
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	session, err := ort.NewAdvancedSession(
		m.modelPath,
		[]string{"input_ids"},
		[]string{"logits"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		options,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	logits := outputTensor.GetData()
	lastTokenStart := (len(inputIDs) - 1) * m.vocabSize
	lastLogits := logits[lastTokenStart : lastTokenStart+m.vocabSize]

	return sampleToken(lastLogits, seq.Temperature), nil
}

// sampleToken draws a token from temperature-scaled softmax of the logits
func sampleToken(logits []float32, temperature float64) int {
	scaled := make([]float32, len(logits))
	copy(scaled, logits)

	if temperature != 1.0 {
		for i := range scaled {
			scaled[i] /= float32(temperature)
		}
	}

	maxLogit := scaled[0]
	for _, logit := range scaled {
		if logit > maxLogit {
			maxLogit = logit
		}
	}

	var sumExp float32
	probs := make([]float32, len(scaled))
	for i, logit := range scaled {
		probs[i] = float32(math.Exp(float64(logit - maxLogit)))
		sumExp += probs[i]
	}
	for i := range probs {
		probs[i] /= sumExp
	}

	r := rand.Float32()
	var cum float32
	for i, prob := range probs {
		cum += prob
		if r <= cum {
			return i
		}
	}

	return len(probs) - 1
}

// Close cleans up resources
func (m *onnxRunner) Close() error {
	m.initialized = false
	return nil
}
