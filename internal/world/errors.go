package world

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a pixel coordinate lies outside the canvas.
	ErrOutOfBounds = errors.New("pixel out of bounds")

	// ErrInvalidDimensions is returned when a width or height is not positive
	// or the area exceeds MaxCanvasPixels.
	ErrInvalidDimensions = errors.New("invalid canvas dimensions")

	// ErrInvalidSnapshotInterval is returned when a history is built with an interval below 1.
	ErrInvalidSnapshotInterval = errors.New("snapshot interval must be positive")

	// ErrCorruptHistory is returned when a restored history violates its invariants.
	ErrCorruptHistory = errors.New("corrupt history")
)

// CanvasError reports a rejected canvas operation together with the
// dimensions involved: the canvas size for ErrOutOfBounds, the requested
// size for ErrInvalidDimensions.
type CanvasError struct {
	Kind   error
	Width  int
	Height int
}

func (e *CanvasError) Error() string {
	return fmt.Sprintf("%v (%dx%d)", e.Kind, e.Width, e.Height)
}

func (e *CanvasError) Unwrap() error { return e.Kind }

func outOfBounds(w, h int) error {
	return &CanvasError{Kind: ErrOutOfBounds, Width: w, Height: h}
}

func invalidDimensions(w, h int) error {
	return &CanvasError{Kind: ErrInvalidDimensions, Width: w, Height: h}
}
