package coach

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ptcoach/ptcoach/pkg/landmark"
	"github.com/ptcoach/ptcoach/pkg/model"
)

// squatFrame builds a plausible squat-depth pose at depth in [0,1]: 0 is
// standing, 1 is full depth. offsetX nudges the knees sideways (to
// exercise divergence/correction logic).
func squatFrame(depth, offsetX float64) landmark.RawFrame {
	var f landmark.RawFrame
	kneeY := 0.5 - 0.3*depth
	set := func(idx landmark.Index, x, y, z float64) {
		f.Points[idx] = landmark.Point{X: x, Y: y, Z: z, Visibility: 1}
	}
	set(landmark.LeftShoulder, -0.3, 2.0, 0)
	set(landmark.RightShoulder, 0.3, 2.0, 0)
	set(landmark.LeftHip, -0.5, 1.0-0.1*depth, 0)
	set(landmark.RightHip, 0.5, 1.0-0.1*depth, 0)
	set(landmark.LeftKnee, -0.45+offsetX, kneeY, 0)
	set(landmark.RightKnee, 0.45+offsetX, kneeY, 0)
	set(landmark.LeftAnkle, -0.4, 0.0, 0)
	set(landmark.RightAnkle, 0.4, 0.0, 0)
	set(landmark.LeftFootIndex, -0.35, -0.05, 0.1)
	set(landmark.RightFootIndex, 0.35, -0.05, 0.1)
	for i := range f.Points {
		if f.Points[i].Visibility == 0 {
			f.Points[i] = landmark.Point{Visibility: 1}
		}
	}
	return f
}

// testArtifact builds a small synthetic squat reference: 60 frames tracing
// one rep cycle, with tight tolerances so perturbed frames trip corrections.
func testArtifact(t *testing.T) *model.Artifact {
	t.Helper()
	spec := landmark.Registry[landmark.Squat]
	const n = 60

	refNorm := make([]landmark.Normalized, n)
	rawFeatures := make([][]float64, n)
	for i := 0; i < n; i++ {
		phase := float64(i) / float64(n-1)
		depth := phase
		if depth > 0.5 {
			depth = 1 - depth
		}
		depth *= 2
		f := squatFrame(depth, 0)
		norm, _, err := landmark.Normalize(f)
		require.NoError(t, err)
		refNorm[i] = norm
		rawFeatures[i] = vectorFor(norm, spec.FeatureLandmarks)
	}

	mean := meanColumns(rawFeatures)
	std := make([]float64, len(mean))
	for i := range std {
		std[i] = 1
	}
	scaled := make([][]float64, n)
	for i, row := range rawFeatures {
		s := make([]float64, len(row))
		for j := range row {
			s[j] = (row[j] - mean[j]) / std[j]
		}
		scaled[i] = s
	}

	tol := make(map[landmark.Index]model.Tolerance, len(spec.CorrectionLandmarks))
	for _, idx := range spec.CorrectionLandmarks {
		side, part := landmark.SideAndPart(idx)
		tol[idx] = model.Tolerance{X: 0.05, Y: 0.06, Side: side, Part: part}
	}

	return &model.Artifact{
		ExerciseKey:          spec.Key,
		ExerciseDisplayName:  spec.DisplayName,
		RefNorm:              refNorm,
		RefFeaturesScaled:    scaled,
		FeatMean:             mean,
		FeatStd:              std,
		FeatureLandmarks:     spec.FeatureLandmarks,
		CorrectionLandmarks:  spec.CorrectionLandmarks,
		DistanceCalibration:  model.PercentileTriple{P50: 0.05, P90: 0.1, P99: 0.2},
		// squatFrame only bends the knee to about 170 degrees at full depth,
		// so the rep thresholds sit inside the 170-180 degree range it spans.
		KneeAngleCalibration: model.KneeCalibration{P10: 172, P50: 176, P90: 178},
		CorrectionTolerance:  tol,
	}
}

func vectorFor(n landmark.Normalized, indices []landmark.Index) []float64 {
	out := make([]float64, 0, 3*len(indices))
	for _, idx := range indices {
		p := n[idx]
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

func meanColumns(rows [][]float64) []float64 {
	d := len(rows[0])
	mean := make([]float64, d)
	for _, r := range rows {
		for i, v := range r {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(rows))
	}
	return mean
}

func TestInferSimpleCleanReplayLowDivergence(t *testing.T) {
	a := testArtifact(t)
	e := New(a, PolicySimple, zap.NewNop())
	p := e.Infer(squatFrame(0, 0), 0)
	require.Empty(t, p.CoachingMessages, "clean replay produced coaching messages")
	require.LessOrEqualf(t, p.RMSDivergence, 0.02, "clean replay RMS divergence too high")
}

func TestInferSimpleDetectsKneePerturbation(t *testing.T) {
	a := testArtifact(t)
	e := New(a, PolicySimple, zap.NewNop())
	p := e.Infer(squatFrame(0, 0.15), 0)
	require.NotEmpty(t, p.CoachingMessages, "expected a coaching message for a perturbed knee position")
}

// squatFrameAnkle is squatFrame with an added vertical ankle perturbation,
// to exercise the ankle correction landmark independently of the knees.
func squatFrameAnkle(depth, ankleOffsetY float64) landmark.RawFrame {
	f := squatFrame(depth, 0)
	f.Points[landmark.LeftAnkle].Y += ankleOffsetY
	f.Points[landmark.RightAnkle].Y += ankleOffsetY
	f.Points[landmark.LeftFootIndex].Y += ankleOffsetY
	f.Points[landmark.RightFootIndex].Y += ankleOffsetY
	return f
}

func TestInferToleranceDetectsAnklePerturbation(t *testing.T) {
	a := testArtifact(t)
	e := New(a, PolicyTolerance, zap.NewNop())

	var p Payload
	for i := 0; i < 3; i++ {
		p = e.Infer(squatFrameAnkle(0, -0.15), int64(i)*33)
	}
	found := false
	for _, c := range p.Corrections {
		if c.Part == "ankle" {
			found = true
		}
	}
	require.Truef(t, found, "expected an ankle correction for a sustained ankle-down perturbation, got %+v", p.Corrections)
}

// TestArrowOverlaySmoothingDampensJump exercises the EMA overlay smoothing
// in isolation from hysteresis activate/clear timing: once a correction is
// active, a single-frame jump in the underlying landmark should move the
// smoothed arrow endpoint only partway toward the new raw position.
func TestArrowOverlaySmoothingDampensJump(t *testing.T) {
	a := testArtifact(t)
	e := New(a, PolicyTolerance, zap.NewNop())

	var first, second *Correction
	for i := 0; i < 4; i++ {
		p := e.Infer(squatFrame(0, 0.2), int64(i)*33)
		for j := range p.Corrections {
			if p.Corrections[j].Part == "knee" && p.Corrections[j].Side == "left" {
				first = &p.Corrections[j]
			}
		}
	}
	require.NotNil(t, first, "expected an active knee correction before perturbing further")
	curBefore := first.UI.CurrentXYNorm

	p := e.Infer(squatFrame(0, 0.35), 4*33)
	for j := range p.Corrections {
		if p.Corrections[j].Part == "knee" && p.Corrections[j].Side == "left" {
			second = &p.Corrections[j]
		}
	}
	require.NotNil(t, second, "expected the knee correction to remain active after the jump")
	curAfter := second.UI.CurrentXYNorm

	moved := math.Hypot(curAfter.X-curBefore.X, curAfter.Y-curBefore.Y)
	require.NotZero(t, moved, "expected the smoothed arrow endpoint to move at all toward the new jump")
	// overlayAlphaCur=0.72 means the raw jump should be damped to well under
	// its full magnitude in one frame; a bare copy of the raw point would
	// move much further than the smoothed one.
	require.LessOrEqualf(t, moved, 0.25, "smoothed arrow endpoint moved too far in one frame, expected EMA damping to keep it small")
}

func TestInferToleranceActivatesAndClears(t *testing.T) {
	a := testArtifact(t)
	e := New(a, PolicyTolerance, zap.NewNop())

	// Large, sustained perturbation should activate a correction.
	var p Payload
	for i := 0; i < 3; i++ {
		p = e.Infer(squatFrame(0, 0.2), int64(i)*33)
	}
	require.NotEmpty(t, p.Corrections, "expected an active correction for a large sustained perturbation")
	found := false
	for _, c := range p.Corrections {
		if c.Part == "knee" {
			found = true
			require.Containsf(t, []Severity{SeverityHigh, SeverityMedium}, c.Severity, "knee correction severity = %v, want medium/high", c.Severity)
		}
	}
	require.True(t, found, "expected a knee correction among active corrections")

	// Returning to reference should clear it after enough frames.
	for i := 0; i < 5; i++ {
		p = e.Infer(squatFrame(0, 0), int64(i+10)*33)
	}
	for _, c := range p.Corrections {
		require.NotEqualf(t, "knee", c.Part, "knee correction did not clear: %+v", c)
	}
}

func TestInferNoPoseMarker(t *testing.T) {
	a := testArtifact(t)
	e := New(a, PolicyTolerance, zap.NewNop())
	var blank landmark.RawFrame
	p := e.Infer(blank, 0)
	require.Len(t, p.Corrections, 1)
	require.Equal(t, MarkerNoPose, p.Corrections[0].ID)
}

func TestRepCounterIncrementsOnFullCycle(t *testing.T) {
	a := testArtifact(t)
	e := New(a, PolicySimple, zap.NewNop())

	var lastRep int
	steps := 40
	for cycle := 0; cycle < 2; cycle++ {
		for i := 0; i <= steps; i++ {
			depth := math.Sin(float64(i) / float64(steps) * math.Pi)
			p := e.Infer(squatFrame(depth, 0), int64(cycle*steps+i)*33)
			lastRep = p.Exercise.Rep
		}
	}
	require.GreaterOrEqual(t, lastRep, 1, "expected at least one counted rep after two squat cycles")
}

func TestPhaseForBoundaries(t *testing.T) {
	cases := []struct {
		idx, n int
		want   Phase
	}{
		{0, 100, PhaseSetup},
		{30, 100, PhaseDescending},
		{50, 100, PhaseBottom},
		{70, 100, PhaseAscending},
		{99, 100, PhaseTop},
	}
	for _, c := range cases {
		if got := phaseFor(c.idx, c.n); got != c.want {
			t.Errorf("phaseFor(%d,%d) = %v, want %v", c.idx, c.n, got, c.want)
		}
	}
}
