package coach

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/ptcoach/ptcoach/pkg/feature"
	"github.com/ptcoach/ptcoach/pkg/geomkernel"
	"github.com/ptcoach/ptcoach/pkg/landmark"
	"github.com/ptcoach/ptcoach/pkg/model"
)

// Policy selects which coaching strategy Engine.Infer runs. It is chosen
// once at New and never switched: spec.md §9 keeps PolicySimple and
// PolicyTolerance as distinct, never-merged variants rather than a runtime
// mode flag, because they disagree on what "active" even means (a
// threshold crossing vs. a hysteresis-gated state).
type Policy int

const (
	// PolicySimple corrects whenever divergence exceeds a flat threshold.
	// Grounded on original_source/cv_backend/coach_engine.py (CoachV2Engine).
	PolicySimple Policy = iota
	// PolicyTolerance corrects via ratio-based severity with activate/clear
	// hysteresis. Grounded on
	// original_source/EXPERIMENT_PT_coach/live_coach.py (PTCoachEngine).
	PolicyTolerance
)

const (
	qualityRingCapacity = 12
	qualityReportWindow = 8
	rmsRingCapacity     = 300
	rmsHistoryReported  = 60

	alignmentVisibilityFloor = 0.5
	alignmentMinLandmarks    = 4

	poseNotClearConfidence = 0.35

	kneeHistCapacity  = 10
	kneeSmoothWindow  = 5
	defaultStanding   = 160.0
	defaultDown       = 125.0
)

// Engine is the per-session coaching state machine. Infer and LastSkeleton
// hold an internal mutex, so calls never overlap; frames are processed in
// the order the calls acquire it.
type Engine struct {
	artifact *model.Artifact
	policy   Policy
	log      *zap.Logger

	mu sync.Mutex

	qualityHist []float64
	rmsHist     []RMSPoint

	kneeHist       []float64
	repState       string
	repCount       int
	standingThresh float64
	downThresh     float64

	// PolicyTolerance-only state.
	hysteresis map[landmark.Index]*hysteresisState
	overlay    map[string]*overlayState

	lastSpokenMessage string
	lastMessageTSMS    int64

	lastNorm landmark.Normalized
}

// New builds an Engine bound to a trained artifact and a fixed policy.
func New(artifact *model.Artifact, policy Policy, log *zap.Logger) *Engine {
	standing := defaultStanding
	down := defaultDown
	if artifact.KneeAngleCalibration.P90 > 0 {
		standing = artifact.KneeAngleCalibration.P90
	}
	if artifact.KneeAngleCalibration.P10 > 0 {
		down = artifact.KneeAngleCalibration.P10
	}
	return &Engine{
		artifact:       artifact,
		policy:         policy,
		log:            log,
		repState:       "standing",
		standingThresh: standing,
		downThresh:     down,
		hysteresis:     make(map[landmark.Index]*hysteresisState),
		overlay:        make(map[string]*overlayState),
	}
}

// Infer runs one frame through matching, divergence measurement, and
// whichever Policy this Engine was built with. It never returns an error:
// an unusable frame degrades to a marker-only Payload (NO_POSE /
// POSE_NOT_CLEAR) per spec.md §7.
func (e *Engine) Infer(frame landmark.RawFrame, timestampMS int64) Payload {
	e.mu.Lock()
	defer e.mu.Unlock()

	if frame.AllInvisible() {
		return e.noPosePayload(timestampMS)
	}

	norm, frameInfo, err := landmark.Normalize(frame)
	if err != nil {
		return e.noPosePayload(timestampMS)
	}

	e.lastNorm = norm

	feat := feature.Vector(norm, e.artifact.FeatureLandmarks)
	featScaled := feature.Standardize(feat, e.artifact.FeatMean, e.artifact.FeatStd)
	refIdx, dist := e.matchFrame(featScaled)

	quality := e.qualityFromDistance(dist)
	e.qualityHist = pushCapped(e.qualityHist, quality, qualityRingCapacity)
	qualitySmooth := meanOfLast(e.qualityHist, qualityReportWindow)

	leftKnee, rightKnee, kneeAvg := geomkernel.KneeAngles(norm)
	e.updateReps(kneeAvg)

	confidence := meanVisibility(frame, landmark.AlignmentLandmarks)

	ref := e.artifact.RefNorm[refIdx]
	refAligned := e.alignReference(frame, norm, ref)

	measurements := Measurements{
		LeftKneeAngleDeg:  leftKnee,
		RightKneeAngleDeg: rightKnee,
		AvgKneeAngleDeg:   kneeAvg,
		LeftFootXBody:     norm[landmark.LeftFootIndex].X,
		RightFootXBody:    norm[landmark.RightFootIndex].X,
	}

	base := Payload{
		TimestampMS: timestampMS,
		Exercise: ExerciseState{
			Name:           e.artifact.ExerciseKey,
			Phase:          phaseFor(refIdx, e.artifact.NumReferenceFrames()),
			Rep:            e.repCount,
			ReferenceFrame: refIdx,
		},
		Quality: QualityState{
			Score:      qualitySmooth,
			Confidence: clamp01(confidence),
			Distance:   dist,
		},
		Measurements: measurements,
	}

	switch e.policy {
	case PolicyTolerance:
		e.inferTolerance(&base, frame, norm, ref, frameInfo, confidence, timestampMS)
		var sumSq float64
		nVisible := 0
		for _, idx := range e.artifact.CorrectionLandmarks {
			if frame.Points[idx].Visibility < alignmentVisibilityFloor {
				continue
			}
			d := geomkernel.Distance(norm[idx].XY(), refAligned[idx])
			sumSq += d * d
			nVisible++
		}
		rms := math.Sqrt(sumSq / math.Max(1, float64(nVisible)))
		e.rmsHist = pushRMS(e.rmsHist, RMSPoint{TimeSec: float64(timestampMS) / 1000.0, RMS: rms}, rmsRingCapacity)
		base.RMSDivergence = rms
		base.RMSHistory = lastRMSPoints(e.rmsHist, rmsHistoryReported)
	default:
		e.inferSimple(&base, frame, norm, refAligned, timestampMS)
	}
	return base
}

// LastSkeleton returns the body-frame-normalized skeleton from the most
// recent Infer call, for callers that sample coaching state out of the hot
// path (see pkg/sink.Sampler).
func (e *Engine) LastSkeleton() landmark.Normalized {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastNorm
}

func (e *Engine) matchFrame(featScaled []float64) (idx int, distance float64) {
	best := math.Inf(1)
	bestIdx := 0
	for i, row := range e.artifact.RefFeaturesScaled {
		d := euclidean(row, featScaled)
		if d < best {
			best = d
			bestIdx = i
		}
	}
	return bestIdx, best
}

func (e *Engine) qualityFromDistance(d float64) float64 {
	p50 := e.artifact.DistanceCalibration.P50
	p99 := e.artifact.DistanceCalibration.P99
	denom := math.Max(1e-6, p99-p50)
	q := 1.0 - (d-p50)/denom
	return clamp01(q)
}

func (e *Engine) updateReps(kneeAvg float64) {
	e.kneeHist = pushCapped(e.kneeHist, kneeAvg, kneeHistCapacity)
	k := meanOfLast(e.kneeHist, kneeSmoothWindow)
	switch e.repState {
	case "standing":
		if k < e.downThresh {
			e.repState = "down"
		}
	case "down":
		if k > e.standingThresh {
			e.repState = "standing"
			e.repCount++
		}
	}
}

// alignReference runs Procrustes alignment of the matched reference frame
// onto the current user pose when enough alignment landmarks are visible,
// else falls back to the raw reference (spec.md §4.F "alignment").
func (e *Engine) alignReference(frame landmark.RawFrame, norm landmark.Normalized, ref landmark.Normalized) [landmark.Count]landmark.Point2D {
	var userAlign, refAlign []landmark.Point2D
	var alignIdx []landmark.Index
	for _, idx := range landmark.AlignmentLandmarks {
		if frame.Points[idx].Visibility > alignmentVisibilityFloor {
			userAlign = append(userAlign, norm[idx].XY())
			refAlign = append(refAlign, ref[idx].XY())
			alignIdx = append(alignIdx, idx)
		}
	}

	var out [landmark.Count]landmark.Point2D
	for i := 0; i < landmark.Count; i++ {
		out[i] = ref[i].XY()
	}
	if len(alignIdx) < alignmentMinLandmarks {
		return out
	}

	_, r, scale, t, err := geomkernel.Procrustes2D(userAlign, refAlign, false)
	if err != nil {
		return out
	}
	for i := 0; i < landmark.Count; i++ {
		rotated := r.Apply(ref[i].XY())
		out[i] = landmark.Point2D{
			X: scale*rotated.X + t.X,
			Y: scale*rotated.Y + t.Y,
		}
	}
	return out
}

func (e *Engine) noPosePayload(timestampMS int64) Payload {
	p := Payload{
		TimestampMS: timestampMS,
		Exercise:    ExerciseState{Phase: PhaseSetup},
	}
	switch e.policy {
	case PolicyTolerance:
		p.Corrections = []Correction{{
			ID:       MarkerNoPose,
			Severity: SeverityLow,
			Text:     "No pose detected. Step into frame.",
		}}
		p.Speech = Speech{CooldownMS: 5000}
	default:
		p.CoachingMessages = []CoachingMessage{{
			Type: "error",
			Text: "No pose detected. Step into frame.",
		}}
	}
	return p
}

func phaseFor(refIdx, numFrames int) Phase {
	denom := numFrames - 1
	if denom < 1 {
		denom = 1
	}
	t := float64(refIdx) / float64(denom)
	switch {
	case t < 0.2:
		return PhaseSetup
	case t < 0.45:
		return PhaseDescending
	case t < 0.6:
		return PhaseBottom
	case t < 0.85:
		return PhaseAscending
	default:
		return PhaseTop
	}
}

func meanVisibility(frame landmark.RawFrame, indices []landmark.Index) float64 {
	if len(indices) == 0 {
		return 0
	}
	var sum float64
	for _, idx := range indices {
		sum += frame.Points[idx].Visibility
	}
	return sum / float64(len(indices))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func pushCapped(ring []float64, v float64, capacity int) []float64 {
	ring = append(ring, v)
	if len(ring) > capacity {
		ring = ring[len(ring)-capacity:]
	}
	return ring
}

func meanOfLast(ring []float64, window int) float64 {
	if len(ring) == 0 {
		return 0
	}
	n := window
	if n > len(ring) {
		n = len(ring)
	}
	var sum float64
	for _, v := range ring[len(ring)-n:] {
		sum += v
	}
	return sum / float64(n)
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
