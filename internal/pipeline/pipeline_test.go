package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/image-classifier/internal/imageproc"
	"github.com/Brownie44l1/image-classifier/internal/labels"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	m.Run()
}

type fakeRunner struct {
	mu        sync.Mutex
	inputSize int
	scores    []float32
	calls     int
	lastInput []float32
}

func (f *fakeRunner) Run(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != f.inputSize {
		return nil, &model.ShapeMismatchError{What: "input tensor", Want: f.inputSize, Got: len(input)}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastInput = append([]float32(nil), input...)
	return append([]float32(nil), f.scores...), nil
}

func (f *fakeRunner) InputSize() int  { return f.inputSize }
func (f *fakeRunner) NumOutputs() int { return len(f.scores) }

func solid(w, h int, r, g, b byte) imageproc.RawImage {
	pix := make([]byte, w*h*imageproc.BytesPerPixel)
	for i := 0; i < len(pix); i += imageproc.BytesPerPixel {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
	}
	img, _ := imageproc.NewRawImage(w, h, pix)
	return img
}

func newTestPipeline(t *testing.T, runner *fakeRunner, layout Layout) *Pipeline {
	t.Helper()
	p, err := New(runner, labels.LabelSet{"cat", "dog", "bird"}, Options{
		InputSize: imageproc.Square(4),
		Layout:    layout,
	})
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	var sme *model.ShapeMismatchError

	_, err := New(&fakeRunner{inputSize: 48, scores: []float32{1, 2}}, labels.LabelSet{"a", "b", "c"},
		Options{InputSize: imageproc.Square(4)})
	require.ErrorAs(t, err, &sme)
	assert.Equal(t, "labels vs model outputs", sme.What)

	_, err = New(&fakeRunner{inputSize: 47, scores: []float32{1, 2, 3}}, labels.LabelSet{"a", "b", "c"},
		Options{InputSize: imageproc.Square(4)})
	require.ErrorAs(t, err, &sme)
	assert.Equal(t, "model input vs thumbnail size", sme.What)
}

func TestClassify(t *testing.T) {
	runner := &fakeRunner{inputSize: 48, scores: []float32{0.1, 0.9, 0.3}}
	p := newTestPipeline(t, runner, LayoutNHWC)

	got, err := p.Classify(context.Background(), solid(640, 480, 255, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, model.Classification{Label: "dog", Confidence: 0.9}, got)
	assert.Equal(t, 1, runner.calls)

	require.Len(t, runner.lastInput, 48)
	assert.InDelta(t, 1.0, runner.lastInput[0], 0.02)
	assert.InDelta(t, 0.0, runner.lastInput[1], 0.02)
	assert.InDelta(t, 0.0, runner.lastInput[2], 0.02)
}

func TestClassify_PlanarLayout(t *testing.T) {
	runner := &fakeRunner{inputSize: 48, scores: []float32{0.1, 0.9, 0.3}}
	p := newTestPipeline(t, runner, LayoutNCHW)

	_, err := p.Classify(context.Background(), solid(8, 8, 0, 0, 255))
	require.NoError(t, err)

	// First plane is red, last plane is blue.
	for i := 0; i < 16; i++ {
		assert.InDelta(t, 0.0, runner.lastInput[i], 0.02)
		assert.InDelta(t, 1.0, runner.lastInput[32+i], 0.02)
	}
}

func TestClassifyTopK(t *testing.T) {
	p := newTestPipeline(t, &fakeRunner{inputSize: 48, scores: []float32{0.1, 0.9, 0.3}}, LayoutNHWC)

	got, err := p.ClassifyTopK(context.Background(), solid(10, 10, 1, 2, 3), 2)
	require.NoError(t, err)
	assert.Equal(t, []model.Classification{
		{Label: "dog", Confidence: 0.9},
		{Label: "bird", Confidence: 0.3},
	}, got)

	got, err = p.ClassifyTopK(context.Background(), solid(10, 10, 1, 2, 3), 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestClassify_BufferError(t *testing.T) {
	runner := &fakeRunner{inputSize: 48, scores: []float32{1, 2, 3}}
	p := newTestPipeline(t, runner, LayoutNHWC)

	_, err := p.Classify(context.Background(), imageproc.RawImage{})
	var be *model.BufferError
	assert.ErrorAs(t, err, &be)
	assert.Zero(t, runner.calls)
}

func TestClassify_Cancelled(t *testing.T) {
	runner := &fakeRunner{inputSize: 48, scores: []float32{1, 2, 3}}
	p := newTestPipeline(t, runner, LayoutNHWC)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Classify(ctx, solid(10, 10, 0, 0, 0))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, runner.calls)
}

func TestClassifyTensor(t *testing.T) {
	p := newTestPipeline(t, &fakeRunner{inputSize: 48, scores: []float32{0.5, 0.5, 0.1}}, LayoutNHWC)

	got, err := p.ClassifyTensor(context.Background(), make([]float32, 48), 1)
	require.NoError(t, err)
	assert.Equal(t, "cat", got[0].Label)

	_, err = p.ClassifyTensor(context.Background(), make([]float32, 3), 1)
	var sme *model.ShapeMismatchError
	assert.ErrorAs(t, err, &sme)
}

func TestClassify_Concurrent(t *testing.T) {
	p := newTestPipeline(t, &fakeRunner{inputSize: 48, scores: []float32{0.2, 0.1, 0.7}}, LayoutNHWC)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := p.Classify(context.Background(), solid(5+i, 9, byte(i), 0, 0))
			assert.NoError(t, err)
			assert.Equal(t, "bird", got.Label)
		}(i)
	}
	wg.Wait()
}
