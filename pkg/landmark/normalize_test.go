package landmark

import (
	"math"
	"testing"
)

func cleanFrame() RawFrame {
	var f RawFrame
	for i := range f.Points {
		f.Points[i].Visibility = 1
	}
	f.Points[LeftHip] = Point{X: 0.6, Y: 0.6, Visibility: 1}
	f.Points[RightHip] = Point{X: 0.4, Y: 0.6, Visibility: 1}
	f.Points[LeftShoulder] = Point{X: 0.65, Y: 0.3, Visibility: 1}
	f.Points[RightShoulder] = Point{X: 0.35, Y: 0.3, Visibility: 1}
	return f
}

func TestNormalizePelvisAtOrigin(t *testing.T) {
	norm, _, err := Normalize(cleanFrame())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	pelvisX := (norm[LeftHip].X + norm[RightHip].X) / 2
	pelvisY := (norm[LeftHip].Y + norm[RightHip].Y) / 2
	if math.Abs(pelvisX) > 0.01 || math.Abs(pelvisY) > 0.01 {
		t.Errorf("pelvis midpoint = (%.4f, %.4f), want ~ (0,0)", pelvisX, pelvisY)
	}
}

func TestNormalizeHipWidthUnit(t *testing.T) {
	norm, _, err := Normalize(cleanFrame())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	dx := norm[LeftHip].X - norm[RightHip].X
	dy := norm[LeftHip].Y - norm[RightHip].Y
	width := math.Hypot(dx, dy)
	if math.Abs(width-1) > 0.15 {
		t.Errorf("hip width = %.4f, want ~1", width)
	}
}

func TestNormalizeShoulderAboveOrigin(t *testing.T) {
	norm, _, err := Normalize(cleanFrame())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	shoulderY := (norm[LeftShoulder].Y + norm[RightShoulder].Y) / 2
	if shoulderY <= 0 {
		t.Errorf("shoulder center y_body = %.4f, want > 0", shoulderY)
	}
}

func TestNormalizeRoundTripProjectToImage(t *testing.T) {
	frame := cleanFrame()
	norm, info, err := Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for _, idx := range []Index{LeftHip, RightHip, LeftShoulder, RightShoulder} {
		body := norm[idx].XY()
		img := landmark2D(frame, idx)
		got := ProjectToImage(info, body)
		if math.Abs(got.X-img.X) > 1e-5 || math.Abs(got.Y-img.Y) > 1e-5 {
			t.Errorf("round trip landmark %d: got (%.6f,%.6f) want (%.6f,%.6f)", idx, got.X, got.Y, img.X, img.Y)
		}
	}
}

func landmark2D(f RawFrame, idx Index) Point2D {
	return Point2D{X: f.Points[idx].X, Y: f.Points[idx].Y}
}

func TestNormalizeDegenerateHips(t *testing.T) {
	f := cleanFrame()
	f.Points[LeftHip] = Point{X: 0.5, Y: 0.5, Visibility: 1}
	f.Points[RightHip] = Point{X: 0.5, Y: 0.5, Visibility: 1}
	_, _, err := Normalize(f)
	if err == nil {
		t.Fatal("expected ErrDegeneratePose for coincident hips")
	}
}

func TestNamesRegistryLength(t *testing.T) {
	n := Names()
	if len(n) != Count {
		t.Fatalf("Names() length = %d, want %d", len(n), Count)
	}
	if n[LeftShoulder] != "left_shoulder" {
		t.Errorf("Names()[LeftShoulder] = %q", n[LeftShoulder])
	}
}
