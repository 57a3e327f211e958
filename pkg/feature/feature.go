// Package feature builds the fixed-order feature vector used for
// nearest-neighbor reference matching, and standardizes it against saved
// mean/std constants.
package feature

import (
	"math"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

const degenerateEps = 1e-6

// Vector flattens the selected landmarks' (x_body, y_body, z_scaled) into a
// single feature vector in row-major order. Length is 3*len(indices).
func Vector(n landmark.Normalized, indices []landmark.Index) []float64 {
	out := make([]float64, 0, 3*len(indices))
	for _, idx := range indices {
		p := n[idx]
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

// Standardize applies a saved mean/std to a feature vector: (v-mean)/std.
func Standardize(v, mean, std []float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = (v[i] - mean[i]) / std[i]
	}
	return out
}

// Mean computes the per-dimension mean across a set of equal-length feature
// vectors.
func Mean(samples [][]float64) []float64 {
	if len(samples) == 0 {
		return nil
	}
	d := len(samples[0])
	mean := make([]float64, d)
	for _, s := range samples {
		for i, v := range s {
			mean[i] += v
		}
	}
	n := float64(len(samples))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

// RobustStd computes the per-dimension standard deviation across a set of
// feature vectors, flooring any dimension whose raw std falls below
// epsilon to 1 (a degenerate dimension carries no discriminative signal;
// dividing by its raw std would blow up that dimension's scaled values).
// Per spec.md §9 Open Question (ii): scaled values on a floored dimension
// retain their raw deviation, so per-dimension z-scores on those dimensions
// are not meaningful — callers should consult model.Artifact.DegenerateDims.
func RobustStd(samples [][]float64, mean []float64) []float64 {
	if len(samples) == 0 {
		return nil
	}
	d := len(mean)
	variance := make([]float64, d)
	for _, s := range samples {
		for i, v := range s {
			delta := v - mean[i]
			variance[i] += delta * delta
		}
	}
	n := float64(len(samples))
	std := make([]float64, d)
	for i := range variance {
		raw := math.Sqrt(variance[i] / n)
		if raw < degenerateEps {
			std[i] = 1
		} else {
			std[i] = raw
		}
	}
	return std
}
