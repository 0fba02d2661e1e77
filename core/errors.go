package core

import "errors"

var (
	// ErrInvalidInput marks degenerate geometry, empty inputs and
	// out-of-range configuration. Inside a connectivity pass it is a
	// programming error and aborts the pass.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedPathKind is returned for ray-path records whose kind
	// has no loss formula. It only fails the affected pair.
	ErrUnsupportedPathKind = errors.New("unsupported path kind")
	// ErrGeometryOracle wraps failures of the external ray tracer. The
	// affected pair yields no edge.
	ErrGeometryOracle = errors.New("geometry oracle failure")
	// ErrGridFrozen is returned when mutating a grid after Freeze.
	ErrGridFrozen = errors.New("voxel grid is frozen")
)

// IsPassFatal reports whether err must abort a whole connectivity pass
// rather than just the pair that produced it.
func IsPassFatal(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
