package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var totalSamples atomic.Int64

var (
	AggregationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sieve_aggregations_total",
		Help: "The total number of divide-and-aggregate calls completed",
	})

	AggregationDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "sieve_aggregation_duration_seconds",
		Help: "Duration of divide-and-aggregate calls",
	})

	ChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sieve_chunks_total",
		Help: "The total number of metric sub-batch invocations",
	})

	ChunkWidth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sieve_chunk_width",
		Help:    "Samples per example handed to each metric invocation",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})

	SamplesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sieve_samples_processed_total",
		Help: "Perturbed samples covered, summed over examples",
	})

	CapOutOfRange = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sieve_cap_out_of_range_total",
		Help: "Count of max_examples_per_batch values outside [batch size, batch size * n_samples]",
	})

	AggregationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sieve_aggregation_errors_total",
		Help: "Total number of failures surfaced from metric or aggregation callbacks",
	}, []string{"stage"})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sieve_validation_errors_total",
		Help: "Total number of rejected arguments",
	}, []string{"operation", "error_type"})
)

// RecordAggregation records one completed call that ran over bsz examples.
func RecordAggregation(bsz, nSamples int, duration time.Duration) {
	AggregationsTotal.Inc()
	AggregationDuration.Observe(duration.Seconds())
	n := int64(bsz) * int64(nSamples)
	SamplesProcessed.Add(float64(n))
	totalSamples.Add(n)
}

// RecordChunk records one metric invocation of the given width.
func RecordChunk(width int) {
	ChunksTotal.Inc()
	ChunkWidth.Observe(float64(width))
}

func RecordCapOutOfRange() {
	CapOutOfRange.Inc()
}

// RecordAggregationError counts a callback failure. stage is "metric" or "agg".
func RecordAggregationError(stage string) {
	AggregationErrors.WithLabelValues(stage).Inc()
}

func RecordValidationError(operation, errorType string) {
	ValidationErrors.WithLabelValues(operation, errorType).Inc()
}

// TotalSamples returns the samples counted by RecordAggregation since start.
func TotalSamples() int64 {
	return totalSamples.Load()
}
