package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initializes the process-wide ONNX Runtime environment on
// first use. Every successful call must be paired with releaseEnvironment.
func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs == 0 && ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

type ortBackend struct {
	session     *ort.DynamicAdvancedSession
	inputShape  ort.Shape
	outputShape ort.Shape
}

func newOrtBackend(cfg EngineConfig) (*ortBackend, error) {
	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, &ResourceLoadError{Resource: "onnxruntime", Cause: err}
	}

	b, err := openSession(cfg)
	if err != nil {
		releaseEnvironment()
		return nil, &ResourceLoadError{Resource: cfg.ModelPath, Cause: err}
	}
	return b, nil
}

func openSession(cfg EngineConfig) (*ortBackend, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs/outputs: %w", err)
	}

	in, err := pickTensor(inputs, cfg.InputName)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	out, err := pickTensor(outputs, cfg.OutputName)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	inputShape, err := resolveShape(in.Dimensions, cfg.InputShape)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", in.Name, err)
	}
	outputShape, err := resolveShape(out.Dimensions, nil)
	if err != nil {
		return nil, fmt.Errorf("output %q: %w", out.Name, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{in.Name}, []string{out.Name}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ortBackend{
		session:     session,
		inputShape:  inputShape,
		outputShape: outputShape,
	}, nil
}

func pickTensor(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("model declares no tensors")
	}
	if name == "" {
		return checkFloat(infos[0])
	}
	for _, info := range infos {
		if info.Name == name {
			return checkFloat(info)
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("no tensor named %q", name)
}

func checkFloat(info ort.InputOutputInfo) (ort.InputOutputInfo, error) {
	if info.DataType != ort.TensorElementDataTypeFloat {
		return info, fmt.Errorf("tensor %q has element type %v, want float32", info.Name, info.DataType)
	}
	return info, nil
}

// resolveShape replaces dynamic (non-positive) model dimensions. The batch
// axis becomes 1; other axes come from expected. When expected is given, every
// static dimension must agree with it.
func resolveShape(model ort.Shape, expected []int64) (ort.Shape, error) {
	if len(expected) > 0 && len(expected) != len(model) {
		return nil, fmt.Errorf("model shape %v, expected %v", model, expected)
	}

	shape := make(ort.Shape, len(model))
	for i, d := range model {
		switch {
		case d > 0:
			if len(expected) > 0 && expected[i] != d {
				return nil, fmt.Errorf("model shape %v, expected %v", model, expected)
			}
			shape[i] = d
		case len(expected) > 0 && expected[i] > 0:
			shape[i] = expected[i]
		case i == 0:
			shape[i] = 1
		default:
			return nil, fmt.Errorf("dynamic dimension %d in %v", i, model)
		}
	}
	return shape, nil
}

func (b *ortBackend) infer(input []float32) ([]float32, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](b.inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](b.outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	copy(inputTensor.GetData(), input)

	if err := b.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, err
	}

	data := outputTensor.GetData()
	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

func (b *ortBackend) destroy() error {
	err := b.session.Destroy()
	releaseEnvironment()
	return err
}
