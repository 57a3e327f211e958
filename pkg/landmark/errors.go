package landmark

import "errors"

// Error kinds for MODULE A, per spec.md §7. Each is a sentinel wrapped with
// context at the call site.
var (
	// ErrInvalidFrame marks a raw frame with the wrong landmark count (never
	// possible given the fixed-size array, kept for symmetry with the wire
	// decoder), a non-finite coordinate, or an out-of-range visibility.
	ErrInvalidFrame = errors.New("landmark: invalid frame")

	// ErrDegeneratePose marks a frame whose hip width is too small to build
	// a finite body-frame basis even after the epsilon floor.
	ErrDegeneratePose = errors.New("landmark: degenerate pose")
)
