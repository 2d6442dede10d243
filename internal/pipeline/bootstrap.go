package pipeline

import (
	"fmt"

	"github.com/Brownie44l1/image-classifier/internal/config"
	"github.com/Brownie44l1/image-classifier/internal/imageproc"
	"github.com/Brownie44l1/image-classifier/internal/labels"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

// FromConfig loads labels and the model and assembles a Pipeline. Labels are
// loaded first: without them no classification is possible, so the model is
// never opened. The returned pipeline owns the engine; call Close when done.
func FromConfig(cfg *config.Config) (*Pipeline, error) {
	set, err := labels.Load(cfg.LabelsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrEngineUnavailable, err)
	}

	engine, err := model.NewEngine(model.EngineConfig{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.OrtLibraryPath,
		NumThreads:  cfg.NumThreads,
		InputName:   cfg.InputName,
		OutputName:  cfg.OutputName,
		InputShape:  cfg.InputShape(),
	})
	if err != nil {
		return nil, err
	}

	layout := LayoutNHWC
	if cfg.TensorLayout == config.LayoutNCHW {
		layout = LayoutNCHW
	}

	p, err := New(engine, set, Options{
		InputSize: imageproc.Square(cfg.InputSize),
		Layout:    layout,
	})
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("%w: %w", model.ErrEngineUnavailable, err)
	}
	return p, nil
}
