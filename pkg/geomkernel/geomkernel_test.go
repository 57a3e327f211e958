package geomkernel

import (
	"math"
	"testing"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

func TestAngleDegRightAngle(t *testing.T) {
	a := landmark.Point2D{X: 0, Y: 1}
	b := landmark.Point2D{X: 0, Y: 0}
	c := landmark.Point2D{X: 1, Y: 0}
	got := AngleDeg(a, b, c)
	if math.Abs(got-90) > 1e-6 {
		t.Errorf("AngleDeg = %.6f, want 90", got)
	}
}

func TestAngleDegDegenerateArm(t *testing.T) {
	a := landmark.Point2D{X: 0, Y: 0}
	b := landmark.Point2D{X: 0, Y: 0}
	c := landmark.Point2D{X: 1, Y: 0}
	if got := AngleDeg(a, b, c); got != 180 {
		t.Errorf("AngleDeg with degenerate arm = %.6f, want 180", got)
	}
}

func square() []landmark.Point2D {
	return []landmark.Point2D{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1},
	}
}

func TestProcrustesSelfAlignment(t *testing.T) {
	pts := square()
	aligned, r, s, tr, err := Procrustes2D(pts, pts, false)
	if err != nil {
		t.Fatalf("Procrustes2D: %v", err)
	}
	if math.Abs(s-1) > 1e-4 {
		t.Errorf("scale = %.6f, want 1", s)
	}
	if math.Abs(r[0][0]-1) > 1e-4 || math.Abs(r[1][1]-1) > 1e-4 || math.Abs(r[0][1]) > 1e-4 || math.Abs(r[1][0]) > 1e-4 {
		t.Errorf("rotation = %v, want identity", r)
	}
	if math.Hypot(tr.X, tr.Y) > 1e-4 {
		t.Errorf("translation = %v, want ~0", tr)
	}
	for i, p := range aligned {
		if math.Abs(p.X-pts[i].X) > 1e-4 || math.Abs(p.Y-pts[i].Y) > 1e-4 {
			t.Errorf("aligned[%d] = %v, want %v", i, p, pts[i])
		}
	}
}

func TestProcrustesRecoversRotation(t *testing.T) {
	theta := 20.0 * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)

	x := square()
	y := make([]landmark.Point2D, len(x))
	for i, p := range x {
		y[i] = landmark.Point2D{
			X: cos*p.X - sin*p.Y,
			Y: sin*p.X + cos*p.Y,
		}
	}

	aligned, _, _, _, err := Procrustes2D(x, y, false)
	if err != nil {
		t.Fatalf("Procrustes2D: %v", err)
	}
	var residual float64
	for i := range x {
		dx := aligned[i].X - x[i].X
		dy := aligned[i].Y - x[i].Y
		residual += dx*dx + dy*dy
	}
	if residual > 1e-2 {
		t.Errorf("residual = %.6f, want < 1e-2", residual)
	}
}

func TestProcrustesDegenerateInputReturnsIdentity(t *testing.T) {
	degenerate := []landmark.Point2D{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}
	aligned, r, s, _, err := Procrustes2D(degenerate, square()[:3], false)
	if err != nil {
		t.Fatalf("Procrustes2D: %v", err)
	}
	if s != 1 || r != (Rotation2D{{1, 0}, {0, 1}}) {
		t.Errorf("expected identity transform for degenerate input, got scale=%v r=%v", s, r)
	}
	_ = aligned
}

func TestKneeAnglesStraightLeg(t *testing.T) {
	var n landmark.Normalized
	n[landmark.LeftHip] = landmark.BodyPoint{X: 0, Y: 1}
	n[landmark.LeftKnee] = landmark.BodyPoint{X: 0, Y: 0.5}
	n[landmark.LeftAnkle] = landmark.BodyPoint{X: 0, Y: 0}
	n[landmark.RightHip] = landmark.BodyPoint{X: 1, Y: 1}
	n[landmark.RightKnee] = landmark.BodyPoint{X: 1, Y: 0.5}
	n[landmark.RightAnkle] = landmark.BodyPoint{X: 1, Y: 0}

	left, right, mean := KneeAngles(n)
	if math.Abs(left-180) > 1e-6 || math.Abs(right-180) > 1e-6 {
		t.Errorf("straight leg angles = (%v, %v), want (180,180)", left, right)
	}
	if math.Abs(mean-180) > 1e-6 {
		t.Errorf("mean = %v, want 180", mean)
	}
}
