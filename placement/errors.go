package placement

import (
	"errors"

	"github.com/royalcat/autobuild/geoproj"
)

var (
	// ErrInvalidGeometry is returned for empty, non-finite, unclosed,
	// self-intersecting or zero-area input polygons.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidConfiguration is returned for out-of-range run parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	ErrCoordinateMismatch = geoproj.ErrCoordinateMismatch
)
