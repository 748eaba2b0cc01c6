package perturb

import (
	"math/rand/v2"

	"github.com/23skdu/longbow-sieve/internal/device"
)

// RandomInputs fills a [bsz, features] tensor on ctx with standard normal values.
func RandomInputs(ctx *device.Context, bsz, features int, seed uint64) (*device.Tensor, error) {
	r := rand.New(rand.NewPCG(seed, 1))
	data := make([]float32, bsz*features)
	for i := range data {
		data[i] = float32(r.NormFloat64())
	}
	return ctx.NewTensor("inputs", data, bsz, features)
}

// RandomWeights draws a weight vector of the given length.
func RandomWeights(features int, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, 2))
	w := make([]float64, features)
	for i := range w {
		w[i] = r.NormFloat64()
	}
	return w
}
