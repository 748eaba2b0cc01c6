package batching

import "github.com/23skdu/longbow-sieve/internal/device"

// MetricFunc computes one value per example over the next width samples of
// each example. It owns its own cursor over the samples.
type MetricFunc func(width int) (*device.Tensor, error)

// AggFunc folds a chunk result into the running total. It should be
// associative and must preserve shape.
type AggFunc func(acc, next *device.Tensor) (*device.Tensor, error)

// AddAgg sums chunk results elementwise. It is the default.
func AddAgg(acc, next *device.Tensor) (*device.Tensor, error) {
	return acc.Add(next)
}

// MaxAgg keeps the elementwise maximum across chunks.
func MaxAgg(acc, next *device.Tensor) (*device.Tensor, error) {
	return acc.Max(next)
}

// AggByName maps "sum"/"add" and "max" onto an AggFunc.
func AggByName(name string) (AggFunc, bool) {
	switch name {
	case "", "sum", "add":
		return AddAgg, true
	case "max":
		return MaxAgg, true
	}
	return nil, false
}
