package coach

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// Divergence-based coaching constants, grounded on
// original_source/cv_backend/coach_engine.py (CoachV2Engine). 0.04 body-
// frame units is roughly 1-2cm for an average person.
const (
	coachThreshold    = 0.04
	directionDeadzone = 0.03
	magnitudeSlight   = 0.20
	magnitudeLarge    = 0.35
)

// inferSimple fills in base.Divergences, base.CoachingMessages,
// base.RMSDivergence and base.RMSHistory under PolicySimple: measure
// per-correction-landmark divergence against the Procrustes-aligned
// reference, coach only past a flat threshold, worst-first.
func (e *Engine) inferSimple(base *Payload, frame landmark.RawFrame, norm landmark.Normalized, refAligned [landmark.Count]landmark.Point2D, timestampMS int64) {
	var divergences []Divergence
	var messages []CoachingMessage
	var totalDivSq float64
	var nVisible int

	for _, idx := range e.artifact.CorrectionLandmarks {
		if frame.Points[idx].Visibility < alignmentVisibilityFloor {
			continue
		}

		userXY := norm[idx].XY()
		alignedRefXY := refAligned[idx]
		dx := userXY.X - alignedRefXY.X
		dy := userXY.Y - alignedRefXY.Y
		divDist := math.Hypot(dx, dy)
		totalDivSq += divDist * divDist
		nVisible++

		side, part := landmark.SideAndPart(idx)
		divergences = append(divergences, Divergence{
			Side: side, Part: part,
			DeltaX: dx, DeltaY: dy,
			Distance: divDist,
		})

		if divDist > coachThreshold {
			direction := directionText(dx, dy)
			magnitude := magnitudeWord(divDist)
			text := correctionSentence(side, part, direction, magnitude)
			messages = append(messages, CoachingMessage{
				Type: "correction",
				Text: text,
				div:  divDist,
			})
		}
	}

	denom := nVisible
	if denom < 1 {
		denom = 1
	}
	rms := math.Sqrt(totalDivSq / float64(denom))

	e.rmsHist = pushRMS(e.rmsHist, RMSPoint{TimeSec: float64(timestampMS) / 1000.0, RMS: rms}, rmsRingCapacity)

	sort.SliceStable(messages, func(i, j int) bool { return messages[i].div > messages[j].div })

	base.RMSDivergence = rms
	base.Divergences = divergences
	base.CoachingMessages = messages
	base.RMSHistory = lastRMSPoints(e.rmsHist, rmsHistoryReported)
}

func directionText(dx, dy float64) string {
	var dirs []string
	if math.Abs(dx) > directionDeadzone {
		if dx > 0 {
			dirs = append(dirs, "right")
		} else {
			dirs = append(dirs, "left")
		}
	}
	if math.Abs(dy) > directionDeadzone {
		if dy > 0 {
			dirs = append(dirs, "down")
		} else {
			dirs = append(dirs, "up")
		}
	}
	if len(dirs) == 0 {
		return "closer"
	}
	return strings.Join(dirs, " and ")
}

func magnitudeWord(divDist float64) string {
	switch {
	case divDist < magnitudeSlight:
		return "slightly"
	case divDist < magnitudeLarge:
		return ""
	default:
		return "more"
	}
}

func correctionSentence(side, part, direction, magnitude string) string {
	msg := fmt.Sprintf("Move your %s %s %s", side, part, direction)
	if magnitude != "" {
		msg += " " + magnitude
	}
	msg = strings.TrimSpace(msg)
	msg = strings.ReplaceAll(msg, "  ", " ")
	return msg + "."
}

func pushRMS(ring []RMSPoint, v RMSPoint, capacity int) []RMSPoint {
	ring = append(ring, v)
	if len(ring) > capacity {
		ring = ring[len(ring)-capacity:]
	}
	return ring
}

func lastRMSPoints(ring []RMSPoint, n int) []RMSPoint {
	if len(ring) <= n {
		out := make([]RMSPoint, len(ring))
		copy(out, ring)
		return out
	}
	out := make([]RMSPoint, n)
	copy(out, ring[len(ring)-n:])
	return out
}
