package batching

import (
	"github.com/23skdu/longbow-sieve/internal/logger"
	"github.com/23skdu/longbow-sieve/internal/metrics"
)

const capWarning = "max_examples_per_batch must be at least the input batch size and at most batch size * n_samples; " +
	"each sub-batch has to hold at least one sample of every example and must not exceed n_samples"

// CapInRange reports whether limit lies in [bsz, bsz*nSamples] once floored
// to whole samples per example.
func CapInRange(bsz, nSamples, limit int) bool {
	c := floorDiv(limit, bsz)
	return c >= 1 && c <= nSamples
}

// ResolveChunkWidth returns how many samples per example go into one metric
// call. A nil limit means all nSamples at once. An out-of-range limit is
// clamped into [1, nSamples] after a single warning on log; it is never
// rejected.
func ResolveChunkWidth(bsz, nSamples int, limit *int, log *logger.Logger) int {
	if limit == nil {
		return nSamples
	}
	if !CapInRange(bsz, nSamples, *limit) {
		if log == nil {
			log = logger.Log
		}
		log.Warn(capWarning,
			"max_examples_per_batch", *limit,
			"batch_size", bsz,
			"n_samples", nSamples,
		)
		metrics.RecordCapOutOfRange()
	}
	return ChunkWidth(bsz, nSamples, limit)
}

// ChunkWidth is ResolveChunkWidth without the warning side effects.
func ChunkWidth(bsz, nSamples int, limit *int) int {
	if limit == nil {
		return nSamples
	}
	return clamp(floorDiv(*limit, bsz), 1, nSamples)
}

// floorDiv rounds toward negative infinity for a positive divisor.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
