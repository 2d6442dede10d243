package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/image-classifier/internal/imageproc"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

type funcClassifier func(ctx context.Context, img imageproc.RawImage, k int) ([]model.Classification, error)

func (f funcClassifier) ClassifyTopK(ctx context.Context, img imageproc.RawImage, k int) ([]model.Classification, error) {
	return f(ctx, img, k)
}

func byWidth(_ context.Context, img imageproc.RawImage, _ int) ([]model.Classification, error) {
	if img.Width == 0 {
		return nil, &model.BufferError{Reason: "zero-sized image"}
	}
	return []model.Classification{{Label: "w", Confidence: float32(img.Width)}}, nil
}

func await(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestDispatcher_Succeeds(t *testing.T) {
	d := NewDispatcher(funcClassifier(byWidth), 2, 4)
	defer d.Close()

	ch, err := d.Submit(context.Background(), Request{Image: imageproc.RawImage{Width: 7}})
	require.NoError(t, err)

	o := await(t, ch)
	assert.Equal(t, StatusSucceeded, o.Status)
	assert.Equal(t, float32(7), o.Result.Confidence)
	assert.Len(t, o.Ranked, 1)
	assert.NoError(t, o.Err)
}

func TestDispatcher_Fails(t *testing.T) {
	d := NewDispatcher(funcClassifier(byWidth), 1, 1)
	defer d.Close()

	ch, err := d.Submit(context.Background(), Request{})
	require.NoError(t, err)

	o := await(t, ch)
	assert.Equal(t, StatusFailed, o.Status)
	var be *model.BufferError
	assert.ErrorAs(t, o.Err, &be)
	assert.Equal(t, int64(1), d.Stats().Failed)
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := NewDispatcher(funcClassifier(func(context.Context, imageproc.RawImage, int) ([]model.Classification, error) {
		panic("boom")
	}), 1, 1)
	defer d.Close()

	ch, err := d.Submit(context.Background(), Request{})
	require.NoError(t, err)

	o := await(t, ch)
	assert.Equal(t, StatusFailed, o.Status)
	assert.ErrorContains(t, o.Err, "boom")
}

func TestDispatcher_CancelledBeforeRun(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(funcClassifier(func(ctx context.Context, img imageproc.RawImage, k int) ([]model.Classification, error) {
		<-release
		return byWidth(ctx, img, k)
	}), 1, 4)
	defer d.Close()

	first, err := d.Submit(context.Background(), Request{Image: imageproc.RawImage{Width: 1}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	second, err := d.Submit(ctx, Request{Image: imageproc.RawImage{Width: 2}})
	require.NoError(t, err)
	cancel()
	close(release)

	assert.Equal(t, StatusSucceeded, await(t, first).Status)
	o := await(t, second)
	assert.Equal(t, StatusNotAttempted, o.Status)
	assert.ErrorIs(t, o.Err, context.Canceled)
	assert.Equal(t, int64(1), d.Stats().Skipped)
}

func TestDispatcher_SubmitBlocksUntilContextDone(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(funcClassifier(func(ctx context.Context, img imageproc.RawImage, k int) ([]model.Classification, error) {
		<-release
		return byWidth(ctx, img, k)
	}), 1, 0)
	defer d.Close()
	defer close(release)

	_, err := d.Submit(context.Background(), Request{Image: imageproc.RawImage{Width: 1}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Submit(ctx, Request{Image: imageproc.RawImage{Width: 2}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	d := NewDispatcher(funcClassifier(byWidth), 2, 32)

	var mu sync.Mutex
	var got []Status
	for i := 1; i <= 20; i++ {
		err := d.SubmitFunc(context.Background(), Request{Image: imageproc.RawImage{Width: i}}, func(o Outcome) {
			mu.Lock()
			got = append(got, o.Status)
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	d.Close()

	assert.Len(t, got, 20)
	for _, s := range got {
		assert.Equal(t, StatusSucceeded, s)
	}

	stats := d.Stats()
	assert.Equal(t, int64(20), stats.Submitted)
	assert.Equal(t, int64(20), stats.Succeeded)
	assert.Zero(t, stats.InFlight)

	_, err := d.Submit(context.Background(), Request{})
	assert.True(t, errors.Is(err, ErrDispatcherClosed))
	d.Close()
}

func TestDispatcher_ConcurrentSubmitters(t *testing.T) {
	d := NewDispatcher(funcClassifier(byWidth), 4, 8)
	defer d.Close()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ch, err := d.Submit(context.Background(), Request{Image: imageproc.RawImage{Width: w}})
			if !assert.NoError(t, err) {
				return
			}
			o := await(t, ch)
			assert.Equal(t, float32(w), o.Result.Confidence)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(50), d.Stats().Succeeded)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not_attempted", StatusNotAttempted.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
