package landmark

import (
	"fmt"
	"math"
)

// hipWidthFloor is the epsilon floor applied to the hip width before it is
// used as a divisor, matching the original reference implementation's
// 1e-4 floor.
const hipWidthFloor = 1e-4

// axisDegenerateEps is the threshold below which a projected "up" vector is
// considered degenerate and replaced by the perpendicular of the x-axis.
const axisDegenerateEps = 1e-6

// Normalize projects a raw frame into the body-centric frame: origin at the
// pelvis midpoint, x-axis along the hip line (right hip to left hip), y-axis
// orthogonal toward the shoulders, scale in hip-widths. See spec.md §4.A.
func Normalize(frame RawFrame) (Normalized, FrameInfo, error) {
	lhip := Point2D{X: frame.Points[LeftHip].X, Y: frame.Points[LeftHip].Y}
	rhip := Point2D{X: frame.Points[RightHip].X, Y: frame.Points[RightHip].Y}
	lsh := Point2D{X: frame.Points[LeftShoulder].X, Y: frame.Points[LeftShoulder].Y}
	rsh := Point2D{X: frame.Points[RightShoulder].X, Y: frame.Points[RightShoulder].Y}

	pelvis := midpoint(lhip, rhip)
	hipVec := sub(lhip, rhip)
	hipWidthRaw := norm(hipVec)
	hipWidth := math.Max(hipWidthRaw, hipWidthFloor)
	xAxis := unit(hipVec)

	shoulderCenter := midpoint(lsh, rsh)
	upGuess := sub(shoulderCenter, pelvis)
	upProj := sub(upGuess, scale(xAxis, dot(upGuess, xAxis)))
	if norm(upProj) < axisDegenerateEps {
		upProj = Point2D{X: -xAxis.Y, Y: xAxis.X}
	}
	yAxis := unit(upProj)

	var out Normalized
	for i, p := range frame.Points {
		rel := Point2D{X: p.X - pelvis.X, Y: p.Y - pelvis.Y}
		out[i] = BodyPoint{
			X: dot(rel, xAxis) / hipWidth,
			Y: dot(rel, yAxis) / hipWidth,
			Z: p.Z / hipWidth,
		}
	}

	info := FrameInfo{Pelvis: pelvis, XAxis: xAxis, YAxis: yAxis, Scale: hipWidth}

	if !finiteBodyPoint(out[LeftHip]) || !finiteBodyPoint(out[RightHip]) || hipWidthRaw < hipWidthFloor && hipWidthRaw <= 0 {
		return out, info, fmt.Errorf("%w: hip width %.6g collapsed to floor", ErrDegeneratePose, hipWidthRaw)
	}
	return out, info, nil
}

func finiteBodyPoint(b BodyPoint) bool {
	return !math.IsNaN(b.X) && !math.IsNaN(b.Y) && !math.IsNaN(b.Z) &&
		!math.IsInf(b.X, 0) && !math.IsInf(b.Y, 0) && !math.IsInf(b.Z, 0)
}

func midpoint(a, b Point2D) Point2D {
	return Point2D{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func sub(a, b Point2D) Point2D {
	return Point2D{X: a.X - b.X, Y: a.Y - b.Y}
}

func scale(a Point2D, s float64) Point2D {
	return Point2D{X: a.X * s, Y: a.Y * s}
}

func dot(a, b Point2D) float64 {
	return a.X*b.X + a.Y*b.Y
}

func norm(a Point2D) float64 {
	return math.Sqrt(a.X*a.X + a.Y*a.Y)
}

func unit(a Point2D) Point2D {
	n := norm(a)
	if n < 1e-6 {
		return Point2D{X: 1, Y: 0}
	}
	return Point2D{X: a.X / n, Y: a.Y / n}
}
