// Package reduce is the embedding reduction core: it validates request bodies,
// runs PCA on the validated matrix and reports failures as structured errors.
//
// Every call is independent. The fitted model is returned to the caller with
// the result and is never cached or shared between requests.
package reduce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/sanonone/embedreduce/pkg/metrics"
	"github.com/sanonone/embedreduce/pkg/pca"
	"golang.org/x/sync/semaphore"
)

// Options configures a Service.
type Options struct {
	// DefaultComponents applies when a request omits n_components. Zero means DefaultComponents.
	DefaultComponents int
	// MaxConcurrent bounds the number of decompositions running at once. Zero means runtime.NumCPU().
	MaxConcurrent int
}

// Service validates and reduces embedding batches.
type Service struct {
	validator *Validator
	slots     *semaphore.Weighted
	limit     int
}

// Result is a successful reduction.
type Result struct {
	// Reduced has NSamples rows of NComponents values.
	Reduced  [][]float64
	Model    *pca.Model
	Duration time.Duration
}

// NewService creates a Service from opts.
func NewService(opts Options) (*Service, error) {
	if opts.DefaultComponents == 0 {
		opts.DefaultComponents = DefaultComponents
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = runtime.NumCPU()
	}
	if opts.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrent reductions must be positive, got %d", opts.MaxConcurrent)
	}
	v, err := NewValidator(opts.DefaultComponents)
	if err != nil {
		return nil, err
	}
	return &Service{
		validator: v,
		slots:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		limit:     opts.MaxConcurrent,
	}, nil
}

// Validator returns the request validator.
func (s *Service) Validator() *Validator {
	return s.validator
}

// MaxConcurrent returns the decomposition concurrency bound.
func (s *Service) MaxConcurrent() int {
	return s.limit
}

// Decode reads and validates a JSON request body.
func (s *Service) Decode(r io.Reader) (*Batch, error) {
	return s.validator.Decode(r)
}

// Build validates a typed request.
func (s *Service) Build(req Request) (*Batch, error) {
	return s.validator.Build(req)
}

// Reduce fits PCA on the batch and projects it onto the leading axes.
// It blocks while MaxConcurrent decompositions are already running, until ctx is done.
func (s *Service) Reduce(ctx context.Context, b *Batch) (*Result, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, newError(KindCanceled, err, "reduction canceled before it started")
	}
	defer s.slots.Release(1)

	metrics.InFlightReductions.Inc()
	defer metrics.InFlightReductions.Dec()

	start := time.Now()
	model, y, err := pca.FitTransform(b.Matrix, b.NComponents)
	if err != nil {
		if errors.Is(err, pca.ErrComponents) || errors.Is(err, pca.ErrEmpty) || errors.Is(err, pca.ErrShape) {
			return nil, newError(KindValidation, err, "invalid request")
		}
		return nil, newError(KindComputation, err, "PCA reduction failed")
	}
	return &Result{
		Reduced:  pca.ToRows(y),
		Model:    model,
		Duration: time.Since(start),
	}, nil
}

// Record updates the reduction metrics for one request from source ("http", "mcp").
func Record(source string, b *Batch, res *Result, err error) {
	if err != nil {
		metrics.ReductionsTotal.WithLabelValues(source, string(KindOf(err))).Inc()
		return
	}
	metrics.ReductionsTotal.WithLabelValues(source, "ok").Inc()
	metrics.ReductionDuration.WithLabelValues(source).Observe(res.Duration.Seconds())
	if b != nil {
		metrics.InputSamples.Observe(float64(b.NSamples))
		metrics.InputFeatures.Observe(float64(b.NFeatures))
	}
}
