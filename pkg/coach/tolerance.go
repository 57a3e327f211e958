package coach

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// Hysteresis constants, grounded on
// original_source/EXPERIMENT_PT_coach/live_coach.py: only sharply-diverged
// landmarks activate a correction, and it stays active until form is
// mostly corrected, so small oscillations around the boundary don't
// chatter.
const (
	activateRatio   = 2.5
	clearRatio      = 1.35
	activateAbsDX   = 0.06
	activateAbsDY   = 0.06
	clearAbsDX      = 0.022
	clearAbsDY      = 0.03

	directionTieBreakRatio = 1.1

	severityHighRatio   = 2.0
	severityMediumRatio = 1.35

	speechCooldownMS = 5000
)

// inferTolerance fills in base.Corrections and base.Speech under
// PolicyTolerance: ratio-based severity against each correction
// landmark's calibrated tolerance, gated by activate/clear hysteresis so
// a correction doesn't flicker at the boundary.
func (e *Engine) inferTolerance(base *Payload, frame landmark.RawFrame, norm landmark.Normalized, ref landmark.Normalized, frameInfo landmark.FrameInfo, confidence float64, timestampMS int64) {
	var corrections []Correction
	activeIDs := make(map[string]bool)

	for _, idx := range e.artifact.CorrectionLandmarks {
		tol, ok := e.artifact.CorrectionTolerance[idx]
		if !ok {
			continue
		}

		curX, curY := norm[idx].X, norm[idx].Y
		refX, refY := ref[idx].X, ref[idx].Y
		dx := curX - refX
		dy := curY - refY

		ratioX := math.Abs(dx) / math.Max(tol.X, 1e-6)
		ratioY := math.Abs(dy) / math.Max(tol.Y, 1e-6)
		errRatio := math.Max(ratioX, ratioY)

		id := fmt.Sprintf("%s_%s_%d", strings.ToUpper(tol.Side), strings.ToUpper(tol.Part), idx)

		state, ok := e.hysteresis[idx]
		if !ok {
			state = &hysteresisState{}
			e.hysteresis[idx] = state
		}

		shouldActivate := errRatio >= activateRatio && (math.Abs(dx) >= activateAbsDX || math.Abs(dy) >= activateAbsDY)
		shouldClear := errRatio <= clearRatio || (math.Abs(dx) <= clearAbsDX && math.Abs(dy) <= clearAbsDY)
		isActive := (state.active && !shouldClear) || (!state.active && shouldActivate)
		state.active = isActive

		if !isActive {
			continue
		}
		activeIDs[id] = true

		direction := dominantDirection(dx, dy, ratioX, ratioY)
		magnitude := magnitudeTier(errRatio)

		targetXYImg := landmark.ProjectToImage(frameInfo, ref[idx].XY())
		curXYImg := landmark.Point2D{X: frame.Points[idx].X, Y: frame.Points[idx].Y}
		curXYImgS, targetXYImgS := e.smoothOverlay(id, curXYImg, targetXYImg)

		corrections = append(corrections, Correction{
			ID:       id,
			Severity: severityFromRatio(errRatio),
			Side:     tol.Side,
			Part:     tol.Part,
			Target: CorrectionTarget{
				DeltaXBody: -dx,
				DeltaYBody: -dy,
				Units:      "body_norm",
			},
			Why: CorrectionWhy{
				Metric:   "body_frame_position_error",
				CurrentX: curX, TargetX: refX, DeltaX: dx, TolX: tol.X,
				CurrentY: curY, TargetY: refY, DeltaY: dy, TolY: tol.Y,
				RatioX: ratioX, RatioY: ratioY, Ratio: errRatio,
			},
			WhyText: fmt.Sprintf("x %+.2f->%+.2f (tol %.2f), y %+.2f->%+.2f (tol %.2f), ratio %.2fx",
				curX, refX, tol.X, curY, refY, tol.Y, errRatio),
			UI: CorrectionUI{
				LandmarkIndex: idx,
				CurrentXYNorm: curXYImgS,
				TargetXYNorm:  targetXYImgS,
			},
			Text:       correctionSentence2(tol.Side, tol.Part, direction, magnitude),
			ErrorRatio: errRatio,
		})
	}

	e.pruneOverlay(activeIDs)

	sort.SliceStable(corrections, func(i, j int) bool { return corrections[i].ErrorRatio > corrections[j].ErrorRatio })

	speech := Speech{CooldownMS: speechCooldownMS}
	if len(corrections) > 0 {
		top := corrections[0]
		voiced := top.Severity == SeverityMedium || top.Severity == SeverityHigh
		if voiced && (top.Text != e.lastSpokenMessage || timestampMS-e.lastMessageTSMS > speechCooldownMS) {
			speech.ShouldSpeak = true
			speech.Text = top.Text
			e.lastSpokenMessage = top.Text
			e.lastMessageTSMS = timestampMS
		}
	}

	// A safety reminder fires only when tracking confidence is poor, never
	// when form merely diverges from reference.
	if confidence < poseNotClearConfidence && len(corrections) == 0 {
		corrections = append(corrections, Correction{
			ID:       MarkerPoseNotClear,
			Severity: SeverityLow,
			Text:     "Move fully into frame and face the camera.",
		})
	}

	base.Corrections = corrections
	base.Speech = speech
}

func dominantDirection(dx, dy, ratioX, ratioY float64) string {
	var dirs []string
	if ratioX >= directionTieBreakRatio {
		if dx > 0 {
			dirs = append(dirs, "right")
		} else {
			dirs = append(dirs, "left")
		}
	}
	if ratioY >= directionTieBreakRatio {
		if dy > 0 {
			dirs = append(dirs, "down")
		} else {
			dirs = append(dirs, "up")
		}
	}
	if len(dirs) == 0 {
		if math.Abs(dx) >= math.Abs(dy) {
			if dx > 0 {
				return "right"
			}
			return "left"
		}
		if dy > 0 {
			return "down"
		}
		return "up"
	}
	if len(dirs) > 2 {
		dirs = dirs[:2]
	}
	return strings.Join(dirs, " and ")
}

func magnitudeTier(errRatio float64) string {
	switch {
	case errRatio >= severityHighRatio:
		return "large"
	case errRatio >= severityMediumRatio:
		return "medium"
	default:
		return "small"
	}
}

func severityFromRatio(r float64) Severity {
	switch {
	case r >= severityHighRatio:
		return SeverityHigh
	case r >= severityMediumRatio:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

var magnitudePhrase = map[string]string{
	"small":  "slightly",
	"medium": "",
	"large":  "more",
}

func correctionSentence2(side, part, direction, magnitude string) string {
	phrase := magnitudePhrase[magnitude]
	if phrase != "" {
		return strings.ReplaceAll(fmt.Sprintf("Move your %s %s %s %s.", side, part, direction, phrase), "  ", " ")
	}
	return fmt.Sprintf("Move your %s %s %s.", side, part, direction)
}
