// Package coach implements the real-time form-coaching engine: match the
// current pose against a trained reference model, measure divergence, and
// emit a structured coaching payload.
package coach

import "github.com/ptcoach/ptcoach/pkg/landmark"

// Severity classifies how far a correction has drifted from tolerance.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Phase names the portion of the reference trajectory the matched frame
// falls in.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseDescending Phase = "descending"
	PhaseBottom     Phase = "bottom"
	PhaseAscending  Phase = "ascending"
	PhaseTop        Phase = "top"
)

// Failure markers emitted in place of ordinary corrections when the pose
// itself can't be trusted, rather than when form diverges from reference.
const (
	MarkerNoPose       = "NO_POSE"
	MarkerPoseNotClear = "POSE_NOT_CLEAR"
)

// Divergence is the per-landmark body-frame delta measured by PolicySimple.
type Divergence struct {
	Side     string  `json:"side"`
	Part     string  `json:"part"`
	DeltaX   float64 `json:"delta_x"`
	DeltaY   float64 `json:"delta_y"`
	Distance float64 `json:"distance"`
}

// CoachingMessage is a PolicySimple correction message.
type CoachingMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	// div is the source divergence distance, kept only to sort messages
	// worst-first; not part of the public payload shape.
	div float64
}

// CorrectionTarget is where the landmark should move to, in body-frame units.
type CorrectionTarget struct {
	DeltaXBody float64 `json:"delta_x_body"`
	DeltaYBody float64 `json:"delta_y_body"`
	Units      string  `json:"units"`
}

// CorrectionWhy carries the raw numbers behind a PolicyTolerance correction,
// for debugging and UI "why" tooltips.
type CorrectionWhy struct {
	Metric   string  `json:"metric"`
	CurrentX float64 `json:"current_x"`
	TargetX  float64 `json:"target_x"`
	DeltaX   float64 `json:"delta_x"`
	TolX     float64 `json:"tol_x"`
	CurrentY float64 `json:"current_y"`
	TargetY  float64 `json:"target_y"`
	DeltaY   float64 `json:"delta_y"`
	TolY     float64 `json:"tol_y"`
	RatioX   float64 `json:"ratio_x"`
	RatioY   float64 `json:"ratio_y"`
	Ratio    float64 `json:"ratio"`
}

// CorrectionUI carries the smoothed screen-space arrow endpoints for a
// PolicyTolerance correction.
type CorrectionUI struct {
	LandmarkIndex landmark.Index   `json:"landmark_index"`
	CurrentXYNorm landmark.Point2D `json:"current_xy_norm"`
	TargetXYNorm  landmark.Point2D `json:"target_xy_norm"`
}

// Correction is a PolicyTolerance hysteresis-gated correction.
type Correction struct {
	ID         string        `json:"id"`
	Severity   Severity      `json:"severity"`
	Side       string        `json:"side,omitempty"`
	Part       string        `json:"part,omitempty"`
	Target     CorrectionTarget `json:"target,omitzero"`
	Why        CorrectionWhy    `json:"why,omitzero"`
	WhyText    string        `json:"why_text,omitempty"`
	UI         CorrectionUI     `json:"ui,omitzero"`
	Text       string        `json:"text"`
	ErrorRatio float64       `json:"error_ratio,omitempty"`
}

// RMSPoint is one sample of the RMS-divergence-over-time history.
type RMSPoint struct {
	TimeSec float64 `json:"timeSec"`
	RMS     float64 `json:"rms"`
}

// ExerciseState reports rep counting and phase progress.
type ExerciseState struct {
	Name           landmark.ExerciseKey `json:"name"`
	Phase          Phase                `json:"phase"`
	Rep            int                  `json:"rep"`
	ReferenceFrame int                  `json:"reference_frame"`
}

// QualityState reports the smoothed match quality and tracking confidence.
type QualityState struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

// Speech reports whether a voice prompt should fire this frame.
type Speech struct {
	ShouldSpeak bool   `json:"should_speak"`
	Text        string `json:"text"`
	CooldownMS  int    `json:"cooldown_ms"`
}

// Measurements reports raw joint-angle and foot-position numbers, useful
// for plain numeric display regardless of policy.
type Measurements struct {
	LeftKneeAngleDeg  float64 `json:"left_knee_angle_deg"`
	RightKneeAngleDeg float64 `json:"right_knee_angle_deg"`
	AvgKneeAngleDeg   float64 `json:"avg_knee_angle_deg"`
	LeftFootXBody     float64 `json:"left_foot_x_body"`
	RightFootXBody    float64 `json:"right_foot_x_body"`
}

// Payload is the coaching engine's per-frame output. Depending on which
// Policy produced it, either Divergences/CoachingMessages (PolicySimple) or
// Corrections (PolicyTolerance) is populated; the other stays empty. Both
// variants share Exercise, Quality, Measurements, RMSDivergence and
// RMSHistory.
type Payload struct {
	TimestampMS int64 `json:"ts_ms"`

	Exercise     ExerciseState `json:"exercise"`
	Quality      QualityState  `json:"quality"`
	Measurements Measurements  `json:"measurements"`

	RMSDivergence float64    `json:"rms_divergence"`
	RMSHistory    []RMSPoint `json:"rms_history,omitempty"`

	// PolicySimple output.
	Divergences      []Divergence      `json:"divergences,omitempty"`
	CoachingMessages []CoachingMessage `json:"coaching_messages,omitempty"`

	// PolicyTolerance output.
	Corrections []Correction `json:"corrections,omitempty"`
	Speech      Speech       `json:"speech,omitzero"`
}
