package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

func sampleArtifact() *Artifact {
	norm := make([]landmark.Normalized, 3)
	for i := range norm {
		norm[i][landmark.LeftHip] = landmark.BodyPoint{X: -0.5, Y: 0, Z: 0}
		norm[i][landmark.RightHip] = landmark.BodyPoint{X: 0.5, Y: 0, Z: 0}
	}
	return &Artifact{
		ExerciseKey:         landmark.Squat,
		ExerciseDisplayName: "Squat",
		RefNorm:             norm,
		RefFeaturesScaled:   [][]float64{{0, 0}, {0.1, 0.1}, {-0.1, -0.1}},
		FeatMean:            []float64{0, 0},
		FeatStd:             []float64{1, 1},
		FeatureLandmarks:    []landmark.Index{landmark.LeftHip, landmark.RightHip},
		CorrectionLandmarks: []landmark.Index{landmark.LeftKnee, landmark.RightKnee},
		DistanceCalibration: PercentileTriple{P50: 0.1, P90: 0.2, P99: 0.3},
		KneeAngleCalibration: KneeCalibration{
			P10: 120, P50: 150, P90: 170,
		},
		CorrectionTolerance: map[landmark.Index]Tolerance{
			landmark.LeftKnee:  {X: 0.05, Y: 0.06, Side: "left", Part: "knee"},
			landmark.RightKnee: {X: 0.05, Y: 0.06, Side: "right", Part: "knee"},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	a := sampleArtifact()
	base := filepath.Join(t.TempDir(), "squat")
	if err := Save(base, a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(base)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ExerciseKey != a.ExerciseKey {
		t.Errorf("ExerciseKey = %v, want %v", got.ExerciseKey, a.ExerciseKey)
	}
	if got.NumReferenceFrames() != a.NumReferenceFrames() {
		t.Errorf("NumReferenceFrames = %d, want %d", got.NumReferenceFrames(), a.NumReferenceFrames())
	}
	if len(got.CorrectionTolerance) != len(a.CorrectionTolerance) {
		t.Errorf("CorrectionTolerance len = %d, want %d", len(got.CorrectionTolerance), len(a.CorrectionTolerance))
	}
	if got.RefNorm[1][landmark.RightHip].X != a.RefNorm[1][landmark.RightHip].X {
		t.Errorf("round-tripped RefNorm mismatch")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error loading missing model")
	}
}

func TestValidateRejectsNonPositiveFeatStd(t *testing.T) {
	a := sampleArtifact()
	a.FeatStd[0] = 0
	if err := Validate(a); err == nil {
		t.Fatal("expected error for zero FeatStd")
	}
}

func TestValidateRejectsNonMonotonicCalibration(t *testing.T) {
	a := sampleArtifact()
	a.DistanceCalibration = PercentileTriple{P50: 0.3, P90: 0.2, P99: 0.1}
	if err := Validate(a); err == nil {
		t.Fatal("expected error for non-monotonic distance calibration")
	}
}

func TestValidateRejectsMissingTolerance(t *testing.T) {
	a := sampleArtifact()
	delete(a.CorrectionTolerance, landmark.RightKnee)
	if err := Validate(a); err == nil {
		t.Fatal("expected error for missing correction tolerance")
	}
}

func TestDegenerateDims(t *testing.T) {
	a := sampleArtifact()
	a.FeatStd = []float64{1, 0.5}
	dims := a.DegenerateDims()
	if len(dims) != 1 || dims[0] != 0 {
		t.Errorf("DegenerateDims = %v, want [0]", dims)
	}
}

func TestSaveValidatesBeforeWriting(t *testing.T) {
	a := sampleArtifact()
	a.FeatStd[0] = -1
	base := filepath.Join(t.TempDir(), "bad")
	if err := Save(base, a); err == nil {
		t.Fatal("expected Save to reject invalid artifact")
	}
	if _, err := os.Stat(base + ".bin"); err == nil {
		t.Fatal("Save should not have written .bin for invalid artifact")
	}
}
