// Package perturb provides a sample metric for the batching core: how much a
// linear score moves under Gaussian input noise.
package perturb

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/23skdu/longbow-sieve/internal/device"
)

var ErrExhausted = errors.New("perturb: more samples requested than configured")

type Reduce int

const (
	ReduceSum Reduce = iota
	ReduceMax
)

// NoiseSensitivity scores each example by |w·ε| for ε ~ N(0, scale²I),
// reduced over the samples of a chunk by sum or max. It keeps a cursor so
// successive Metric calls draw fresh samples until NSamples are used. Each
// example draws from its own stream, so results do not depend on how the
// samples are chunked.
type NoiseSensitivity struct {
	Inputs   *device.Tensor
	Weights  []float64
	Scale    float64
	NSamples int
	Reduce   Reduce

	rngs     []*rand.Rand
	consumed int
	noise    []float64
}

func New(inputs *device.Tensor, weights []float64, scale float64, nSamples int, seed uint64) (*NoiseSensitivity, error) {
	dims := inputs.Dims()
	if len(dims) != 2 {
		return nil, fmt.Errorf("perturb: inputs must be [batch, features], got %v", dims)
	}
	if len(weights) != dims[1] {
		return nil, fmt.Errorf("perturb: %d weights for %d features: %w", len(weights), dims[1], device.ErrShapeMismatch)
	}
	rngs := make([]*rand.Rand, dims[0])
	for i := range rngs {
		rngs[i] = rand.New(rand.NewPCG(seed, uint64(i)))
	}
	return &NoiseSensitivity{
		Inputs:   inputs,
		Weights:  weights,
		Scale:    scale,
		NSamples: nSamples,
		rngs:     rngs,
		noise:    make([]float64, dims[1]),
	}, nil
}

// Consumed reports how many samples per example have been drawn.
func (n *NoiseSensitivity) Consumed() int {
	return n.consumed
}

// Metric draws the next width samples for every example.
func (n *NoiseSensitivity) Metric(width int) (*device.Tensor, error) {
	if width < 1 {
		return nil, fmt.Errorf("perturb: width %d", width)
	}
	if n.consumed+width > n.NSamples {
		return nil, fmt.Errorf("%w: %d + %d > %d", ErrExhausted, n.consumed, width, n.NSamples)
	}

	bsz := n.Inputs.Rows()
	out := make([]float32, bsz)
	scores := make([]float64, width)
	for i := 0; i < bsz; i++ {
		for s := 0; s < width; s++ {
			for j := range n.noise {
				n.noise[j] = n.rngs[i].NormFloat64() * n.Scale
			}
			scores[s] = math.Abs(floats.Dot(n.Weights, n.noise))
		}
		if n.Reduce == ReduceMax {
			out[i] = float32(floats.Max(scores))
		} else {
			out[i] = float32(floats.Sum(scores))
		}
	}
	n.consumed += width

	return device.NewTensorOn(n.Inputs.Device(), "sensitivity", out)
}

// Score is the unperturbed linear score of every example.
func (n *NoiseSensitivity) Score() []float64 {
	bsz := n.Inputs.Rows()
	out := make([]float64, bsz)
	row := make([]float64, len(n.Weights))
	for i := 0; i < bsz; i++ {
		for j, v := range n.Inputs.Row(i) {
			row[j] = float64(v)
		}
		out[i] = floats.Dot(n.Weights, row)
	}
	return out
}
