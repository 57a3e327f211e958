package coach

import "github.com/ptcoach/ptcoach/pkg/landmark"

// hysteresisState tracks whether one correction landmark is currently
// "active" under PolicyTolerance's activate/clear bands.
type hysteresisState struct {
	active bool
}

// overlayState holds the EMA-smoothed screen-space arrow endpoints for one
// active correction. Generalizes the teacher's LandmarkSmoother
// (pkg/miface/kalman.go): a lazily-populated map[id]*state, discarded once
// the correction it tracks clears, except here the filter is a plain EMA
// over two endpoints (current, target) instead of a 3D Kalman filter over
// one point.
type overlayState struct {
	cur landmark.Point2D
	tgt landmark.Point2D
}

// Arrow endpoint smoothing constants. Larger alpha means smoother, slower
// to respond. Grounded on
// original_source/EXPERIMENT_PT_coach/live_coach.py's overlay_alpha_cur/tgt.
const (
	overlayAlphaCur = 0.72
	overlayAlphaTgt = 0.82
)

func emaPoint2D(prev, next landmark.Point2D, alpha float64) landmark.Point2D {
	return landmark.Point2D{
		X: alpha*prev.X + (1-alpha)*next.X,
		Y: alpha*prev.Y + (1-alpha)*next.Y,
	}
}

// smoothOverlay applies EMA smoothing to a correction's current/target
// screen-space points, seeding state on first sight.
func (e *Engine) smoothOverlay(id string, cur, tgt landmark.Point2D) (curS, tgtS landmark.Point2D) {
	prev, ok := e.overlay[id]
	if !ok {
		e.overlay[id] = &overlayState{cur: cur, tgt: tgt}
		return cur, tgt
	}
	curS = emaPoint2D(prev.cur, cur, overlayAlphaCur)
	tgtS = emaPoint2D(prev.tgt, tgt, overlayAlphaTgt)
	e.overlay[id] = &overlayState{cur: curS, tgt: tgtS}
	return curS, tgtS
}

// pruneOverlay discards smoothing state for any correction id no longer
// active this frame, so a future activation starts fresh rather than
// snapping from a stale endpoint.
func (e *Engine) pruneOverlay(activeIDs map[string]bool) {
	for id := range e.overlay {
		if !activeIDs[id] {
			delete(e.overlay, id)
		}
	}
}
