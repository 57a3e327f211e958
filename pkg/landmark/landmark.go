// Package landmark defines the 33-point pose frame that flows through the
// coaching pipeline: raw frames as received from the pose estimator, and the
// body-centric normalized frame used for matching and divergence.
package landmark

import (
	"fmt"
	"math"
)

// Index identifies one of the 33 fixed pose landmarks. The ordering is part
// of the wire contract and matches the upstream pose estimator; reshuffling
// it breaks model compatibility.
type Index int

const (
	Nose Index = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	// Count is the fixed number of landmarks per frame.
	Count = 33
)

var names = [Count]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear", "mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_pinky", "right_pinky",
	"left_index", "right_index",
	"left_thumb", "right_thumb",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
	"left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// Name returns the symbolic landmark name, e.g. "left_shoulder".
func (i Index) Name() string {
	if i < 0 || int(i) >= Count {
		return "unknown"
	}
	return names[i]
}

// Names returns the full 33-entry landmark name registry, in index order.
func Names() [Count]string {
	return names
}

// Point is a single raw landmark sample in image-normalized coordinates.
type Point struct {
	X, Y, Z    float64
	Visibility float64
}

// Point2D is a plain 2D point used throughout the body-frame geometry.
type Point2D struct {
	X, Y float64
}

// RawFrame is one frame of 33 raw landmarks plus a capture timestamp.
type RawFrame struct {
	Points      [Count]Point
	TimestampMS int64
}

// Validate checks the structural invariants of spec.md: finite coordinates
// and visibility within [0,1]. A missing landmark (visibility == 0) is
// valid by construction; RawFrame is always exactly Count entries.
func (f RawFrame) Validate() error {
	for i, p := range f.Points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) ||
			math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsInf(p.Z, 0) {
			return fmt.Errorf("%w: landmark %d (%s) has non-finite coordinate", ErrInvalidFrame, i, Index(i).Name())
		}
		if p.Visibility < 0 || p.Visibility > 1 || math.IsNaN(p.Visibility) {
			return fmt.Errorf("%w: landmark %d (%s) visibility %v out of [0,1]", ErrInvalidFrame, i, Index(i).Name(), p.Visibility)
		}
	}
	return nil
}

// AllInvisible reports whether every landmark has zero visibility, i.e. no
// pose was detected at all for this frame.
func (f RawFrame) AllInvisible() bool {
	for _, p := range f.Points {
		if p.Visibility > 0 {
			return false
		}
	}
	return true
}

// BodyPoint is a landmark position expressed in the body-centric frame:
// x/y in hip-widths along the body axes, z scaled by the same hip width.
type BodyPoint struct {
	X, Y, Z float64
}

// XY returns the 2D projection of a BodyPoint, discarding depth.
func (b BodyPoint) XY() Point2D {
	return Point2D{X: b.X, Y: b.Y}
}

// Normalized is one frame of 33 landmarks in the body-centric frame.
type Normalized [Count]BodyPoint

// FrameInfo captures the body-frame basis computed during normalization, so
// body-frame points can be projected back into image space later.
type FrameInfo struct {
	Pelvis Point2D
	XAxis  Point2D
	YAxis  Point2D
	Scale  float64
}

// ProjectToImage maps a 2D body-frame point back to image coordinates using
// the basis captured at normalization time:
// pelvis + (x*scale)*xAxis + (y*scale)*yAxis.
func ProjectToImage(info FrameInfo, body Point2D) Point2D {
	return Point2D{
		X: info.Pelvis.X + body.X*info.Scale*info.XAxis.X + body.Y*info.Scale*info.YAxis.X,
		Y: info.Pelvis.Y + body.X*info.Scale*info.XAxis.Y + body.Y*info.Scale*info.YAxis.Y,
	}
}
