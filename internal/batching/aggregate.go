package batching

import (
	"fmt"
	"time"

	"github.com/23skdu/longbow-sieve/internal/device"
	"github.com/23skdu/longbow-sieve/internal/logger"
	"github.com/23skdu/longbow-sieve/internal/metrics"
)

type options struct {
	limit *int
	agg   AggFunc
	log   *logger.Logger
}

// Option configures DivideAndAggregate.
type Option func(*options)

// WithMaxExamplesPerBatch caps examples (batch size * samples) per metric call.
func WithMaxExamplesPerBatch(n int) Option {
	return func(o *options) {
		o.limit = &n
	}
}

// WithAggregator replaces the default elementwise sum.
func WithAggregator(fn AggFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.agg = fn
		}
	}
}

// WithLogger routes the out-of-range cap warning to l instead of logger.Log.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// step advances progress by one chunk and returns the width to hand to the
// metric. The last chunk shrinks so progress lands exactly on nSamples.
func step(progress, chunkWidth, nSamples int) (width, next int) {
	next = progress + chunkWidth
	width = chunkWidth
	if next > nSamples {
		width = chunkWidth - (next - nSamples)
	}
	return width, min(next, nSamples)
}

// Plan lists the width of every metric call Aggregate would make.
func Plan(nSamples, chunkWidth int) ([]int, error) {
	if nSamples < 1 {
		return nil, ErrInvalidSamples
	}
	if chunkWidth < 1 {
		return nil, ErrInvalidChunkWidth
	}
	widths := make([]int, 0, (nSamples+chunkWidth-1)/chunkWidth)
	for progress := 0; progress < nSamples; {
		var w int
		w, progress = step(progress, chunkWidth, nSamples)
		widths = append(widths, w)
	}
	return widths, nil
}

// Aggregate calls metric once per chunk of chunkWidth samples per example,
// until nSamples are covered, folding each result into a zero tensor of
// length bsz on dev with agg. Errors from metric or agg are returned as is.
func Aggregate(bsz, nSamples, chunkWidth int, dev device.Device, metric MetricFunc, agg AggFunc) (*device.Tensor, error) {
	switch {
	case bsz < 1:
		return nil, ErrInvalidBatchSize
	case nSamples < 1:
		return nil, ErrInvalidSamples
	case chunkWidth < 1:
		return nil, ErrInvalidChunkWidth
	case metric == nil:
		return nil, ErrNilMetric
	}
	if agg == nil {
		agg = AddAgg
	}

	total := device.Zeros("metrics_sum", bsz, dev)
	progress := 0
	for progress < nSamples {
		var width int
		width, progress = step(progress, chunkWidth, nSamples)

		m, err := metric(width)
		if err != nil {
			metrics.RecordAggregationError("metric")
			return nil, err
		}
		metrics.RecordChunk(width)

		total, err = agg(total, m)
		if err != nil {
			metrics.RecordAggregationError("agg")
			return nil, err
		}
	}
	return total, nil
}

// DivideAndAggregate splits nSamples perturbations per example into
// sub-batches bounded by WithMaxExamplesPerBatch, runs metric on each and
// aggregates the results into one value per example. Batch size and device
// are taken from inputs[0]; inputs are never modified.
func DivideAndAggregate(inputs []*device.Tensor, nSamples int, metric MetricFunc, opts ...Option) (*device.Tensor, error) {
	o := options{agg: AddAgg}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Log
	}

	if len(inputs) == 0 || inputs[0] == nil {
		metrics.RecordValidationError("divide_and_aggregate", "no_inputs")
		return nil, ErrNoInputs
	}
	bsz := inputs[0].Rows()
	if bsz < 1 {
		metrics.RecordValidationError("divide_and_aggregate", "batch_size")
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, bsz)
	}
	if nSamples < 1 {
		metrics.RecordValidationError("divide_and_aggregate", "n_samples")
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSamples, nSamples)
	}
	if metric == nil {
		metrics.RecordValidationError("divide_and_aggregate", "nil_metric")
		return nil, ErrNilMetric
	}

	start := time.Now()
	width := ResolveChunkWidth(bsz, nSamples, o.limit, o.log)
	o.log.Debug("divide and aggregate",
		"batch_size", bsz,
		"n_samples", nSamples,
		"chunk_width", width,
		"device", inputs[0].Device().String(),
	)

	total, err := Aggregate(bsz, nSamples, width, inputs[0].Device(), metric, o.agg)
	if err != nil {
		return nil, err
	}
	metrics.RecordAggregation(bsz, nSamples, time.Since(start))
	return total, nil
}
