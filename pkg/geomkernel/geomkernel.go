// Package geomkernel implements the small numeric kernels shared by the
// trainer and the coaching engine: joint angles, Euclidean distance, and 2D
// Procrustes alignment (rotation + uniform scale + translation, optionally
// disallowing reflection).
package geomkernel

import (
	"math"

	"github.com/ptcoach/ptcoach/pkg/landmark"
	"gonum.org/v1/gonum/mat"
)

const angleEps = 1e-6

// AngleDeg returns the angle ABC in degrees. Returns 180 if either arm (A-B
// or C-B) is shorter than epsilon; clamps cos to [-1,1] before acos.
func AngleDeg(a, b, c landmark.Point2D) float64 {
	u := landmark.Point2D{X: a.X - b.X, Y: a.Y - b.Y}
	v := landmark.Point2D{X: c.X - b.X, Y: c.Y - b.Y}
	un := math.Hypot(u.X, u.Y)
	vn := math.Hypot(v.X, v.Y)
	if un < angleEps || vn < angleEps {
		return 180
	}
	cosAngle := (u.X*v.X + u.Y*v.Y) / (un * vn)
	cosAngle = math.Max(-1, math.Min(1, cosAngle))
	return math.Acos(cosAngle) * 180 / math.Pi
}

// KneeAngles computes left, right, and mean knee angle (hip-knee-ankle) in
// degrees from a normalized body-frame pose.
func KneeAngles(n landmark.Normalized) (left, right, mean float64) {
	left = AngleDeg(n[landmark.LeftHip].XY(), n[landmark.LeftKnee].XY(), n[landmark.LeftAnkle].XY())
	right = AngleDeg(n[landmark.RightHip].XY(), n[landmark.RightKnee].XY(), n[landmark.RightAnkle].XY())
	mean = (left + right) / 2
	return left, right, mean
}

// Distance returns the Euclidean distance between two 2D points.
func Distance(a, b landmark.Point2D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Rotation2D is a 2x2 rotation matrix, row-major.
type Rotation2D [2][2]float64

// Apply rotates p by r.
func (r Rotation2D) Apply(p landmark.Point2D) landmark.Point2D {
	return landmark.Point2D{
		X: r[0][0]*p.X + r[0][1]*p.Y,
		Y: r[1][0]*p.X + r[1][1]*p.Y,
	}
}

const procrustesEps = 1e-9

// Procrustes2D finds the similarity transform (rotation, uniform scale,
// translation) that best maps ref onto user in a least-squares sense.
// When allowReflection is false, the recovered rotation is constrained to
// have determinant +1 (no mirroring). Both inputs must have equal, non-zero
// length. Returns identity when either point set's centered norm is below
// epsilon (degenerate input), per spec.md §4.B.
func Procrustes2D(user, ref []landmark.Point2D, allowReflection bool) (aligned []landmark.Point2D, r Rotation2D, scale float64, t landmark.Point2D, err error) {
	n := len(user)
	identity := Rotation2D{{1, 0}, {0, 1}}

	userMean := centroid(user)
	refMean := centroid(ref)

	userCentered := centerAll(user, userMean)
	refCentered := centerAll(ref, refMean)

	userNorm := frobeniusNorm(userCentered)
	refNorm := frobeniusNorm(refCentered)

	if userNorm < procrustesEps || refNorm < procrustesEps {
		aligned = make([]landmark.Point2D, n)
		for i, p := range ref {
			aligned[i] = p
		}
		return aligned, identity, 1, landmark.Point2D{}, nil
	}

	s := userNorm / refNorm

	// M = user_centered^T * ref_centered (2x2)
	var m00, m01, m10, m11 float64
	for i := 0; i < n; i++ {
		m00 += userCentered[i].X * refCentered[i].X
		m01 += userCentered[i].X * refCentered[i].Y
		m10 += userCentered[i].Y * refCentered[i].X
		m11 += userCentered[i].Y * refCentered[i].Y
	}
	m := mat.NewDense(2, 2, []float64{m00, m01, m10, m11})

	var svd mat.SVD
	ok := svd.Factorize(m, mat.SVDFull)
	if !ok {
		aligned = make([]landmark.Point2D, n)
		for i, p := range ref {
			aligned[i] = p
		}
		return aligned, identity, 1, landmark.Point2D{}, nil
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var uvT mat.Dense
	uvT.Mul(&u, v.T())
	det := uvT.At(0, 0)*uvT.At(1, 1) - uvT.At(0, 1)*uvT.At(1, 0)

	d := 1.0
	if !allowReflection && det < 0 {
		d = -1.0
	}
	diag := mat.NewDense(2, 2, []float64{1, 0, 0, d})

	var rm mat.Dense
	rm.Mul(&u, diag)
	rm.Mul(&rm, v.T())

	r = Rotation2D{
		{rm.At(0, 0), rm.At(0, 1)},
		{rm.At(1, 0), rm.At(1, 1)},
	}

	aligned = make([]landmark.Point2D, n)
	for i, p := range refCentered {
		rotated := r.Apply(p)
		aligned[i] = landmark.Point2D{
			X: s*rotated.X + userMean.X,
			Y: s*rotated.Y + userMean.Y,
		}
	}

	refMeanRotated := r.Apply(refMean)
	t = landmark.Point2D{
		X: userMean.X - s*refMeanRotated.X,
		Y: userMean.Y - s*refMeanRotated.Y,
	}

	return aligned, r, s, t, nil
}

func centroid(pts []landmark.Point2D) landmark.Point2D {
	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(pts))
	if n == 0 {
		return landmark.Point2D{}
	}
	return landmark.Point2D{X: sx / n, Y: sy / n}
}

func centerAll(pts []landmark.Point2D, mean landmark.Point2D) []landmark.Point2D {
	out := make([]landmark.Point2D, len(pts))
	for i, p := range pts {
		out[i] = landmark.Point2D{X: p.X - mean.X, Y: p.Y - mean.Y}
	}
	return out
}

func frobeniusNorm(pts []landmark.Point2D) float64 {
	var sum float64
	for _, p := range pts {
		sum += p.X*p.X + p.Y*p.Y
	}
	return math.Sqrt(sum)
}
