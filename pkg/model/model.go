// Package model defines the reference model artifact produced by the
// trainer and consumed read-only by the coaching engine.
package model

import (
	"errors"
	"fmt"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// Errors for MODULE D, per spec.md §7.
var ErrModelLoadFailure = errors.New("model: load failure")

// PercentileTriple holds three calibration percentiles.
type PercentileTriple struct {
	P50, P90, P99 float64
}

// KneeCalibration holds the reference knee-angle calibration percentiles.
type KneeCalibration struct {
	P10, P50, P90 float64
}

// Tolerance is the per-correction-landmark tolerance bound and label.
type Tolerance struct {
	X, Y       float64
	Side, Part string
}

// Artifact is the immutable reference model produced by the trainer and
// consumed by the coaching engine. Every field mirrors spec.md §3
// "Reference model".
type Artifact struct {
	ExerciseKey         landmark.ExerciseKey
	ExerciseDisplayName string

	// RefNorm is N x 33 x 3: the normalized reference trajectory.
	RefNorm []landmark.Normalized
	// RefFeaturesScaled is N x D: standardized reference feature matrix.
	RefFeaturesScaled [][]float64

	FeatMean []float64
	FeatStd  []float64

	FeatureLandmarks    []landmark.Index
	CorrectionLandmarks []landmark.Index

	DistanceCalibration  PercentileTriple
	KneeAngleCalibration KneeCalibration

	CorrectionTolerance map[landmark.Index]Tolerance
}

// NumReferenceFrames returns N, the number of frames in the reference
// trajectory.
func (a *Artifact) NumReferenceFrames() int {
	return len(a.RefNorm)
}

// DegenerateDims returns the indices of feature dimensions whose raw
// standard deviation was below epsilon at training time (FeatStd floored to
// 1). Per spec.md §9 Open Question (ii), callers computing per-dimension
// z-scores should skip these dimensions.
func (a *Artifact) DegenerateDims() []int {
	var dims []int
	for i, s := range a.FeatStd {
		if s == 1 {
			dims = append(dims, i)
		}
	}
	return dims
}

// Validate checks structural and numeric invariants: every key present,
// FeatStd strictly positive, and calibration percentiles weakly monotonic.
func Validate(a *Artifact) error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", ErrModelLoadFailure)
	}
	if len(a.RefNorm) == 0 {
		return fmt.Errorf("%w: empty reference trajectory", ErrModelLoadFailure)
	}
	d := len(a.FeatMean)
	if d == 0 || len(a.FeatStd) != d {
		return fmt.Errorf("%w: feature mean/std dimension mismatch", ErrModelLoadFailure)
	}
	for i, s := range a.FeatStd {
		if s <= 0 {
			return fmt.Errorf("%w: feat_std[%d] = %v, must be > 0", ErrModelLoadFailure, i, s)
		}
	}
	for _, n := range a.RefFeaturesScaled {
		if len(n) != d {
			return fmt.Errorf("%w: ref_features_scaled row width %d != feat dimension %d", ErrModelLoadFailure, len(n), d)
		}
	}
	dc := a.DistanceCalibration
	if !(dc.P50 <= dc.P90 && dc.P90 <= dc.P99) {
		return fmt.Errorf("%w: distance_calibration not weakly monotonic: %+v", ErrModelLoadFailure, dc)
	}
	kc := a.KneeAngleCalibration
	if !(kc.P10 <= kc.P50 && kc.P50 <= kc.P90) {
		return fmt.Errorf("%w: knee_angle_calibration not weakly monotonic: %+v", ErrModelLoadFailure, kc)
	}
	if len(a.CorrectionLandmarks) == 0 {
		return fmt.Errorf("%w: no correction landmarks", ErrModelLoadFailure)
	}
	for _, idx := range a.CorrectionLandmarks {
		if _, ok := a.CorrectionTolerance[idx]; !ok {
			return fmt.Errorf("%w: missing tolerance for correction landmark %d (%s)", ErrModelLoadFailure, idx, idx.Name())
		}
	}
	return nil
}
