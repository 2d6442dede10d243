// Package pipeline wires resampling, pixel extraction, inference and ranking
// into one classification call.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/image-classifier/internal/imageproc"
	"github.com/Brownie44l1/image-classifier/internal/labels"
	"github.com/Brownie44l1/image-classifier/internal/metric"
	"github.com/Brownie44l1/image-classifier/internal/model"
	"github.com/Brownie44l1/image-classifier/internal/ranker"
)

// Runner executes the model. *model.Engine implements it.
type Runner interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
	InputSize() int
	NumOutputs() int
}

type Layout int

const (
	// LayoutNHWC keeps the extracted pixels interleaved (1 x H x W x 3).
	LayoutNHWC Layout = iota
	// LayoutNCHW reorders them into channel planes (1 x 3 x H x W).
	LayoutNCHW
)

type Options struct {
	InputSize imageproc.Size
	Layout    Layout
}

// Pipeline classifies one image per call. It holds no mutable state after
// construction, so one value can serve any number of goroutines.
type Pipeline struct {
	runner Runner
	labels labels.LabelSet
	size   imageproc.Size
	layout Layout
}

// Timings records how long each stage of a call took.
type Timings struct {
	Resample  time.Duration
	Extract   time.Duration
	Inference time.Duration
	Rank      time.Duration
	Total     time.Duration
}

// New checks that the runner, label set and input size agree with each other.
func New(runner Runner, set labels.LabelSet, opts Options) (*Pipeline, error) {
	if runner.NumOutputs() != len(set) {
		return nil, &model.ShapeMismatchError{What: "labels vs model outputs", Want: runner.NumOutputs(), Got: len(set)}
	}
	want := opts.InputSize.Width * opts.InputSize.Height * imageproc.Channels
	if runner.InputSize() != want {
		return nil, &model.ShapeMismatchError{What: "model input vs thumbnail size", Want: runner.InputSize(), Got: want}
	}

	return &Pipeline{
		runner: runner,
		labels: set,
		size:   opts.InputSize,
		layout: opts.Layout,
	}, nil
}

func (p *Pipeline) Labels() labels.LabelSet {
	return p.labels
}

func (p *Pipeline) InputSize() imageproc.Size {
	return p.size
}

// Classify returns the best label for img.
func (p *Pipeline) Classify(ctx context.Context, img imageproc.RawImage) (model.Classification, error) {
	results, err := p.ClassifyTopK(ctx, img, 1)
	if err != nil {
		return model.Classification{}, err
	}
	return results[0], nil
}

// ClassifyTopK returns up to k labels ordered by score. k below 1 is treated
// as 1. The context is checked between stages.
func (p *Pipeline) ClassifyTopK(ctx context.Context, img imageproc.RawImage, k int) ([]model.Classification, error) {
	var timings Timings
	start := time.Now()

	stage := time.Now()
	thumb, err := imageproc.Resample(img, p.size)
	if err != nil {
		return nil, err
	}
	timings.Resample = time.Since(stage)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage = time.Now()
	tensor, err := imageproc.Extract(thumb, p.size)
	if err != nil {
		return nil, err
	}
	if p.layout == LayoutNCHW {
		if tensor, err = imageproc.ToPlanar(tensor, p.size); err != nil {
			return nil, err
		}
	}
	timings.Extract = time.Since(stage)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := p.rank(ctx, tensor, k, &timings)
	if err != nil {
		return nil, err
	}

	timings.Total = time.Since(start)
	p.report(img, &timings)
	return results, nil
}

// ClassifyTensor ranks an already extracted tensor in the model's layout.
func (p *Pipeline) ClassifyTensor(ctx context.Context, tensor []float32, k int) ([]model.Classification, error) {
	var timings Timings
	return p.rank(ctx, tensor, k, &timings)
}

func (p *Pipeline) rank(ctx context.Context, tensor []float32, k int, timings *Timings) ([]model.Classification, error) {
	if k < 1 {
		k = 1
	}

	stage := time.Now()
	scores, err := p.runner.Run(ctx, tensor)
	if err != nil {
		return nil, err
	}
	timings.Inference = time.Since(stage)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage = time.Now()
	var results []model.Classification
	if k == 1 {
		var best model.Classification
		best, err = ranker.TopResult(scores, p.labels)
		results = []model.Classification{best}
	} else {
		results, err = ranker.TopK(scores, p.labels, k)
	}
	if err != nil {
		return nil, err
	}
	timings.Rank = time.Since(stage)
	return results, nil
}

func (p *Pipeline) report(img imageproc.RawImage, t *Timings) {
	metric.Timing(metric.StageLatency, t.Resample, []string{metric.TagAsString(metric.TagStage, "resample")})
	metric.Timing(metric.StageLatency, t.Extract, []string{metric.TagAsString(metric.TagStage, "extract")})
	metric.Timing(metric.StageLatency, t.Inference, []string{metric.TagAsString(metric.TagStage, "inference")})
	metric.Timing(metric.StageLatency, t.Rank, []string{metric.TagAsString(metric.TagStage, "rank")})
	metric.Timing(metric.ClassifyLatency, t.Total, nil)

	if e := log.Debug(); e.Enabled() {
		e.Dict("timings", zerolog.Dict().
			Dur("resample", t.Resample).
			Dur("extract", t.Extract).
			Dur("inference", t.Inference).
			Dur("rank", t.Rank).
			Dur("total", t.Total)).
			Msgf("Classified %dx%d image", img.Width, img.Height)
	}
}

// Close releases the runner if it owns resources.
func (p *Pipeline) Close() {
	if c, ok := p.runner.(interface{ Close() }); ok {
		c.Close()
	}
}
