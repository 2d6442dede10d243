package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/image-classifier/internal/imageproc"
	"github.com/Brownie44l1/image-classifier/internal/metric"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Status distinguishes a request that never ran from one that ran and failed.
type Status int

const (
	StatusNotAttempted Status = iota
	StatusFailed
	StatusSucceeded
)

func (s Status) String() string {
	switch s {
	case StatusNotAttempted:
		return "not_attempted"
	case StatusFailed:
		return "failed"
	case StatusSucceeded:
		return "succeeded"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Request struct {
	Image imageproc.RawImage
	// TopK is the number of ranked labels wanted. Values below 1 mean 1.
	TopK int
}

// Outcome is delivered exactly once per accepted request.
type Outcome struct {
	Status Status
	// Result is the best label when Status is StatusSucceeded.
	Result model.Classification
	Ranked []model.Classification
	Err    error
}

// Classifier is the unit of work a Dispatcher runs. *Pipeline implements it.
type Classifier interface {
	ClassifyTopK(ctx context.Context, img imageproc.RawImage, k int) ([]model.Classification, error)
}

type job struct {
	ctx     context.Context
	req     Request
	deliver func(Outcome)
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	InFlight  int64 `json:"in_flight"`
	Submitted int64 `json:"submitted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// Dispatcher runs classifications on a fixed set of worker goroutines so that
// callers never block on inference.
type Dispatcher struct {
	classifier Classifier
	workers    int
	jobs       chan job
	quit       chan struct{}
	quitOnce   sync.Once
	mu         sync.RWMutex
	closed     bool
	wg         sync.WaitGroup

	inFlight  atomic.Int64
	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

func NewDispatcher(c Classifier, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	d := &Dispatcher{
		classifier: c,
		workers:    workers,
		jobs:       make(chan job, queueSize),
		quit:       make(chan struct{}),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// SubmitFunc queues req and calls fn with its outcome from a worker goroutine.
// It blocks while the queue is full, until ctx is done or the dispatcher closes.
// fn is not called when an error is returned.
func (d *Dispatcher) SubmitFunc(ctx context.Context, req Request, fn func(Outcome)) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.jobs <- job{ctx: ctx, req: req, deliver: fn}:
		d.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return ErrDispatcherClosed
	}
}

// Submit queues req and returns a channel that receives its single outcome.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (<-chan Outcome, error) {
	ch := make(chan Outcome, 1)
	if err := d.SubmitFunc(ctx, req, func(o Outcome) { ch <- o }); err != nil {
		return nil, err
	}
	return ch, nil
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.jobs {
		j.deliver(d.run(j))
	}
}

func (d *Dispatcher) run(j job) (out Outcome) {
	if err := j.ctx.Err(); err != nil {
		d.skipped.Add(1)
		return Outcome{Status: StatusNotAttempted, Err: err}
	}

	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered panic in classification worker: %v", r)
			out = Outcome{Status: StatusFailed, Err: fmt.Errorf("classification panicked: %v", r)}
		}
		d.record(out)
	}()

	results, err := d.classifier.ClassifyTopK(j.ctx, j.req.Image, j.req.TopK)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	if len(results) == 0 {
		return Outcome{Status: StatusFailed, Err: errors.New("classifier returned no results")}
	}
	return Outcome{Status: StatusSucceeded, Result: results[0], Ranked: results}
}

func (d *Dispatcher) record(out Outcome) {
	switch out.Status {
	case StatusSucceeded:
		d.succeeded.Add(1)
	default:
		d.failed.Add(1)
		log.Warn().Err(out.Err).Msg("Classification failed")
	}
	metric.Count(metric.ClassifyCount, 1, []string{metric.TagAsString(metric.TagStatus, out.Status.String())})
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Workers:   d.workers,
		Queued:    len(d.jobs),
		InFlight:  d.inFlight.Load(),
		Submitted: d.submitted.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		Skipped:   d.skipped.Load(),
	}
}

// Close stops accepting work, lets the workers finish everything already
// queued and waits for them.
func (d *Dispatcher) Close() {
	d.quitOnce.Do(func() { close(d.quit) })

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
