package model

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// EngineConfig describes how to load a model.
type EngineConfig struct {
	ModelPath string
	// LibraryPath points at the ONNX Runtime shared library. Empty means the
	// platform default lookup.
	LibraryPath string
	NumThreads  int
	// InputName and OutputName select tensors by name; empty picks the first.
	InputName  string
	OutputName string
	// InputShape is the shape the model is expected to accept, e.g. 1,224,224,3.
	// Dynamic model dimensions are filled in from it.
	InputShape []int64
}

// backend executes one forward pass with tensors allocated for that call only.
type backend interface {
	infer(input []float32) ([]float32, error)
	destroy() error
}

// Engine owns a loaded model. It is safe for concurrent use: every Run
// allocates its own tensors and nothing else is mutated after construction.
type Engine struct {
	backend     backend
	inputShape  []int64
	outputShape []int64
	inputSize   int
	outputSize  int
	closeOnce   sync.Once
}

// NewEngine loads the model at cfg.ModelPath. Any failure is reported as an
// error wrapping ErrEngineUnavailable and no engine is returned.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 1
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, unavailable(&ResourceLoadError{Resource: cfg.ModelPath, Cause: err})
	}

	b, err := newOrtBackend(cfg)
	if err != nil {
		return nil, unavailable(err)
	}

	engine, err := newEngine(b, b.inputShape, b.outputShape)
	if err != nil {
		b.destroy()
		return nil, unavailable(err)
	}

	log.Info().Msgf("Model loaded from %s (input %v, output %v, threads %d)",
		cfg.ModelPath, engine.inputShape, engine.outputShape, cfg.NumThreads)
	return engine, nil
}

func newEngine(b backend, inputShape, outputShape []int64) (*Engine, error) {
	inputSize := flattened(inputShape)
	outputSize := flattened(outputShape)
	if inputSize <= 0 || outputSize <= 0 {
		return nil, &ResourceLoadError{
			Resource: "model shapes",
			Cause:    fmt.Errorf("input %v, output %v", inputShape, outputShape),
		}
	}

	return &Engine{
		backend:     b,
		inputShape:  append([]int64(nil), inputShape...),
		outputShape: append([]int64(nil), outputShape...),
		inputSize:   inputSize,
		outputSize:  outputSize,
	}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
}

func flattened(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return int(n)
}

// InputSize is the number of floats Run expects.
func (e *Engine) InputSize() int {
	return e.inputSize
}

// NumOutputs is the number of scores Run returns.
func (e *Engine) NumOutputs() int {
	return e.outputSize
}

func (e *Engine) InputShape() []int64 {
	return append([]int64(nil), e.inputShape...)
}

// Run executes one forward pass and returns the output scores in index order.
// An input of the wrong length is rejected before the model is invoked. The
// context is only consulted before the pass starts.
func (e *Engine) Run(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != e.inputSize {
		return nil, &ShapeMismatchError{What: "input tensor", Want: e.inputSize, Got: len(input)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores, err := e.backend.infer(input)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	if len(scores) != e.outputSize {
		return nil, &ShapeMismatchError{What: "output tensor", Want: e.outputSize, Got: len(scores)}
	}

	return scores, nil
}

// Close releases the model. It is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if err := e.backend.destroy(); err != nil {
			log.Warn().Err(err).Msg("Failed to release model session")
		}
	})
}
