package batching

import "errors"

var (
	ErrNoInputs          = errors.New("batching: no inputs")
	ErrInvalidBatchSize  = errors.New("batching: batch size must be positive")
	ErrInvalidSamples    = errors.New("batching: n_samples must be positive")
	ErrInvalidChunkWidth = errors.New("batching: chunk width must be positive")
	ErrNilMetric         = errors.New("batching: nil metric func")
)
