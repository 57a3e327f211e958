package landmark

import (
	"fmt"
	"strings"
)

// ExerciseKey identifies one of the exercises the trainer/engine understand.
type ExerciseKey string

const (
	ArmAbduction ExerciseKey = "arm_abduction"
	ArmVW        ExerciseKey = "arm_vw"
	LegAbduction ExerciseKey = "leg_abduction"
	Squat        ExerciseKey = "squat"
)

// ExerciseSpec is the static, registry-owned description of one exercise:
// which landmarks feed the matching feature vector, and which landmarks can
// generate corrections.
type ExerciseSpec struct {
	Key                 ExerciseKey
	DisplayName         string
	FeatureLandmarks    []Index
	CorrectionLandmarks []Index
}

// featureLandmarks is identical across all four registered exercises in the
// original corpus: the ten landmarks spanning shoulders, hips, knees,
// ankles, and feet.
var featureLandmarks = []Index{
	LeftShoulder, RightShoulder,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
	LeftFootIndex, RightFootIndex,
}

// AlignmentLandmarks are the landmarks eligible for Procrustes alignment:
// shoulders, hips, knees, ankles (spec.md §4.F "alignment landmarks").
var AlignmentLandmarks = []Index{
	LeftShoulder, RightShoulder,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// Registry is the static exercise-key -> spec mapping. Trainer and engine
// both read it; it is the single source of truth per spec.md §3.
var Registry = map[ExerciseKey]ExerciseSpec{
	ArmAbduction: {
		Key:                 ArmAbduction,
		DisplayName:         "Arm Abduction",
		FeatureLandmarks:    featureLandmarks,
		CorrectionLandmarks: []Index{LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist},
	},
	ArmVW: {
		Key:                 ArmVW,
		DisplayName:         "Arm VW",
		FeatureLandmarks:    featureLandmarks,
		CorrectionLandmarks: []Index{LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist},
	},
	LegAbduction: {
		Key:                 LegAbduction,
		DisplayName:         "Leg Abduction",
		FeatureLandmarks:    featureLandmarks,
		CorrectionLandmarks: []Index{LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle, LeftFootIndex, RightFootIndex},
	},
	Squat: {
		Key:                 Squat,
		DisplayName:         "Squat",
		FeatureLandmarks:    featureLandmarks,
		CorrectionLandmarks: []Index{LeftKnee, RightKnee, LeftAnkle, RightAnkle, LeftFootIndex, RightFootIndex},
	},
}

// sideByIndex / partByIndex label a correction landmark for message
// composition, e.g. LeftKnee -> ("left", "knee").
var sideByIndex = map[Index]string{
	LeftShoulder: "left", RightShoulder: "right",
	LeftElbow: "left", RightElbow: "right",
	LeftWrist: "left", RightWrist: "right",
	LeftHip: "left", RightHip: "right",
	LeftKnee: "left", RightKnee: "right",
	LeftAnkle: "left", RightAnkle: "right",
	LeftFootIndex: "left", RightFootIndex: "right",
}

var partByIndex = map[Index]string{
	LeftShoulder: "shoulder", RightShoulder: "shoulder",
	LeftElbow: "elbow", RightElbow: "elbow",
	LeftWrist: "wrist", RightWrist: "wrist",
	LeftHip: "hip", RightHip: "hip",
	LeftKnee: "knee", RightKnee: "knee",
	LeftAnkle: "ankle", RightAnkle: "ankle",
	LeftFootIndex: "foot", RightFootIndex: "foot",
}

// SideAndPart returns the (side, part) label pair for a correction landmark,
// e.g. LeftKnee -> ("left", "knee").
func SideAndPart(idx Index) (side, part string) {
	return sideByIndex[idx], partByIndex[idx]
}

// CanonicalExerciseKey normalizes a free-form exercise name ("Arm-Abduction",
// "squat ") into a registered ExerciseKey, or returns an error.
func CanonicalExerciseKey(name string) (ExerciseKey, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	n = strings.ReplaceAll(n, " ", "_")
	key := ExerciseKey(n)
	if _, ok := Registry[key]; ok {
		return key, nil
	}
	return "", fmt.Errorf("landmark: unknown exercise %q", name)
}
