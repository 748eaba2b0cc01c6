package device

import "math"

type Stats struct {
	Max  float32
	Min  float32
	Mean float32
	RMS  float32
	NaNs int
	Infs int
}

// ComputeStats summarizes data, skipping NaN and Inf values in the moments.
func ComputeStats(data []float32) Stats {
	var stats Stats
	var sum, sq float64
	n := 0

	for _, v := range data {
		f := float64(v)
		if math.IsNaN(f) {
			stats.NaNs++
			continue
		}
		if math.IsInf(f, 0) {
			stats.Infs++
			continue
		}
		if n == 0 || v > stats.Max {
			stats.Max = v
		}
		if n == 0 || v < stats.Min {
			stats.Min = v
		}
		sum += f
		sq += f * f
		n++
	}

	if n > 0 {
		stats.Mean = float32(sum / float64(n))
		stats.RMS = float32(math.Sqrt(sq / float64(n)))
	}
	return stats
}
