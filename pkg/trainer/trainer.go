// Package trainer builds a reference model.Artifact from a captured
// sequence of reference landmark frames.
package trainer

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/ptcoach/ptcoach/pkg/feature"
	"github.com/ptcoach/ptcoach/pkg/geomkernel"
	"github.com/ptcoach/ptcoach/pkg/landmark"
	"github.com/ptcoach/ptcoach/pkg/model"
)

// Errors for MODULE E, per spec.md §4.E.
var (
	ErrInsufficientReferenceFrames = errors.New("trainer: insufficient reference frames")
	ErrDegenerateReference         = errors.New("trainer: degenerate reference trajectory")
)

// minReferenceFrames is the floor below which calibration statistics are
// too noisy to trust.
const minReferenceFrames = 10

// degenerateEps mirrors feature.RobustStd's floor: if every feature
// dimension is degenerate, the reference carries no discriminative signal.
const degenerateEps = 1e-6

// tolOffsetX, tolOffsetY and tolFloorX, tolFloorY are the correction
// tolerance constants from the original reference trainer.
const (
	tolOffsetX = 0.03
	tolOffsetY = 0.04
	tolFloorX  = 0.05
	tolFloorY  = 0.06
)

// Train builds a reference model.Artifact from frames captured while
// performing spec correctly. frames must already be validated
// (landmark.RawFrame.Validate).
func Train(frames []landmark.RawFrame, spec landmark.ExerciseSpec) (*model.Artifact, error) {
	if len(frames) < minReferenceFrames {
		return nil, fmt.Errorf("%w: got %d frames, need >= %d", ErrInsufficientReferenceFrames, len(frames), minReferenceFrames)
	}

	n := len(frames)
	refNorm := make([]landmark.Normalized, n)
	rawFeatures := make([][]float64, n)
	kneeAvg := make([]float64, n)

	for i, f := range frames {
		norm, _, err := landmark.Normalize(f)
		if err != nil {
			return nil, fmt.Errorf("trainer: normalizing frame %d: %w", i, err)
		}
		refNorm[i] = norm
		rawFeatures[i] = feature.Vector(norm, spec.FeatureLandmarks)
		_, _, kneeAvg[i] = geomkernel.KneeAngles(norm)
	}

	featMean := feature.Mean(rawFeatures)
	featStd := feature.RobustStd(rawFeatures, featMean)
	if allDegenerate(rawFeatures, featMean, featStd) {
		return nil, ErrDegenerateReference
	}

	refScaled := make([][]float64, n)
	for i, raw := range rawFeatures {
		refScaled[i] = feature.Standardize(raw, featMean, featStd)
	}

	distCal, err := distanceCalibration(refScaled)
	if err != nil {
		return nil, fmt.Errorf("trainer: calibrating distances: %w", err)
	}

	kneeCal, err := kneeCalibration(kneeAvg)
	if err != nil {
		return nil, fmt.Errorf("trainer: calibrating knee angle: %w", err)
	}

	tol, err := toleranceCalibration(refNorm, spec.CorrectionLandmarks)
	if err != nil {
		return nil, fmt.Errorf("trainer: calibrating tolerance: %w", err)
	}

	a := &model.Artifact{
		ExerciseKey:          spec.Key,
		ExerciseDisplayName:  spec.DisplayName,
		RefNorm:              refNorm,
		RefFeaturesScaled:    refScaled,
		FeatMean:             featMean,
		FeatStd:              featStd,
		FeatureLandmarks:     spec.FeatureLandmarks,
		CorrectionLandmarks:  spec.CorrectionLandmarks,
		DistanceCalibration:  distCal,
		KneeAngleCalibration: kneeCal,
		CorrectionTolerance:  tol,
	}
	if err := model.Validate(a); err != nil {
		return nil, fmt.Errorf("trainer: built invalid artifact: %w", err)
	}
	return a, nil
}

func allDegenerate(raw [][]float64, mean, std []float64) bool {
	for i := range std {
		if std[i] != 1 {
			return false
		}
		// std[i]==1 might mean a genuinely unit-variance dimension;
		// confirm it was actually floored by recomputing its raw spread.
		var sum float64
		for _, r := range raw {
			d := r[i] - mean[i]
			sum += d * d
		}
		rawStd := math.Sqrt(sum / float64(len(raw)))
		if rawStd >= degenerateEps {
			return false
		}
	}
	return true
}

// distanceCalibration computes leave-one-out nearest-neighbor distances
// over the standardized reference feature matrix, then takes the
// p50/p90/p99 of that distribution.
func distanceCalibration(refScaled [][]float64) (model.PercentileTriple, error) {
	n := len(refScaled)
	loo := make([]float64, n)
	for i := range refScaled {
		best := math.Inf(1)
		for j := range refScaled {
			if i == j {
				continue
			}
			d := euclidean(refScaled[i], refScaled[j])
			if d < best {
				best = d
			}
		}
		loo[i] = best
	}
	p50, err := stats.Percentile(loo, 50)
	if err != nil {
		return model.PercentileTriple{}, err
	}
	p90, err := stats.Percentile(loo, 90)
	if err != nil {
		return model.PercentileTriple{}, err
	}
	p99, err := stats.Percentile(loo, 99)
	if err != nil {
		return model.PercentileTriple{}, err
	}
	return model.PercentileTriple{P50: p50, P90: p90, P99: p99}, nil
}

func kneeCalibration(kneeAvg []float64) (model.KneeCalibration, error) {
	p10, err := stats.Percentile(kneeAvg, 10)
	if err != nil {
		return model.KneeCalibration{}, err
	}
	p50, err := stats.Percentile(kneeAvg, 50)
	if err != nil {
		return model.KneeCalibration{}, err
	}
	p90, err := stats.Percentile(kneeAvg, 90)
	if err != nil {
		return model.KneeCalibration{}, err
	}
	return model.KneeCalibration{P10: p10, P50: p50, P90: p90}, nil
}

// toleranceCalibration computes, per correction landmark, the per-axis
// jitter tolerance from the residual between the raw reference trajectory
// and a boxcar-smoothed version of it.
func toleranceCalibration(refNorm []landmark.Normalized, correctionLandmarks []landmark.Index) (map[landmark.Index]model.Tolerance, error) {
	n := len(refNorm)
	window := smoothingWindow(n)

	tol := make(map[landmark.Index]model.Tolerance, len(correctionLandmarks))
	for _, idx := range correctionLandmarks {
		rawX := make([]float64, n)
		rawY := make([]float64, n)
		for i, f := range refNorm {
			rawX[i] = f[idx].X
			rawY[i] = f[idx].Y
		}
		smoothX := boxcarSmooth(rawX, window)
		smoothY := boxcarSmooth(rawY, window)

		residX := make([]float64, n)
		residY := make([]float64, n)
		for i := range rawX {
			residX[i] = math.Abs(rawX[i] - smoothX[i])
			residY[i] = math.Abs(rawY[i] - smoothY[i])
		}

		p90x, err := stats.Percentile(residX, 90)
		if err != nil {
			return nil, err
		}
		p90y, err := stats.Percentile(residY, 90)
		if err != nil {
			return nil, err
		}

		side, part := landmark.SideAndPart(idx)
		tol[idx] = model.Tolerance{
			X:    math.Max(tolFloorX, p90x*3.0+tolOffsetX),
			Y:    math.Max(tolFloorY, p90y*3.0+tolOffsetY),
			Side: side,
			Part: part,
		}
	}
	return tol, nil
}

// smoothingWindow mirrors the reference trainer's window choice: clamp(n/30, 3, 7).
func smoothingWindow(n int) int {
	w := n / 30
	if w < 3 {
		w = 3
	}
	if w > 7 {
		w = 7
	}
	return w
}

// boxcarSmooth applies a centered moving average of width w in "same" mode,
// matching train_reference.py:_smooth_1d's
// np.convolve(x, np.ones(w)/w, mode="same"): samples outside the input are
// treated as zero rather than excluded, so every output divides by the
// full window width w, not by however many in-range samples contributed —
// edge outputs are pulled toward zero exactly as the zero-padded
// convolution would, rather than renormalized to a short local average.
func boxcarSmooth(x []float64, w int) []float64 {
	n := len(x)
	out := make([]float64, n)
	half := w / 2
	for i := range x {
		lo := i - half
		hi := i + (w - half) - 1
		var sum float64
		for j := lo; j <= hi; j++ {
			if j < 0 || j >= n {
				continue
			}
			sum += x[j]
		}
		out[i] = sum / float64(w)
	}
	return out
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
