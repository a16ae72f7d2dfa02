package geoproj

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// extentSlack absorbs rounding at the edges of the valid projected range.
const extentSlack = 1e-6

// Transformer moves geometry between two references. Both directions are
// resolved once, so a run can reproject inputs and outputs without
// re-deriving anything per geometry.
type Transformer struct {
	from, to CRS

	forward orb.Projection
	inverse orb.Projection
}

// NewTransformer resolves the projection chain from -> WGS84 -> to.
func NewTransformer(from, to CRS) (*Transformer, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: coordinate reference is not specified", ErrCoordinateMismatch)
	}

	t := &Transformer{from: from, to: to}
	if from == to {
		t.forward = identity
		t.inverse = identity
		return t, nil
	}

	fromToWGS, fromFromWGS, err := wgs84Projections(from)
	if err != nil {
		return nil, err
	}
	toToWGS, toFromWGS, err := wgs84Projections(to)
	if err != nil {
		return nil, err
	}

	t.forward = chain(fromToWGS, toFromWGS)
	t.inverse = chain(toToWGS, fromFromWGS)
	return t, nil
}

func (t *Transformer) From() CRS { return t.from }
func (t *Transformer) To() CRS   { return t.to }

// Forward returns a projected copy of g; g itself is not modified.
func (t *Transformer) Forward(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), t.forward)
}

// Inverse returns a copy of g projected back into the source reference.
func (t *Transformer) Inverse(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), t.inverse)
}

func (t *Transformer) ForwardPoint(p orb.Point) orb.Point { return t.forward(p) }
func (t *Transformer) InversePoint(p orb.Point) orb.Point { return t.inverse(p) }

// Reproject is a one-shot helper around NewTransformer.
func Reproject(g orb.Geometry, from, to CRS) (orb.Geometry, error) {
	t, err := NewTransformer(from, to)
	if err != nil {
		return nil, err
	}
	return t.Forward(g), nil
}

// CheckExtent reports geometry whose coordinates cannot belong to crs, which
// usually means the data was labelled with the wrong reference.
func CheckExtent(g orb.Geometry, crs CRS) error {
	if g == nil {
		return nil
	}
	b := g.Bound()
	if !finite(b.Min) || !finite(b.Max) {
		return fmt.Errorf("%w: non-finite coordinates", ErrCoordinateMismatch)
	}

	var limit orb.Bound
	switch crs {
	case WGS84:
		limit = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	case WebMercator:
		corner := project.WGS84.ToMercator(orb.Point{180, 85.0511287798066})
		limit = orb.Bound{Min: orb.Point{-corner[0], -corner[1]}, Max: corner}
	case WorldMercator:
		corner := ellipsoidalForward(orb.Point{180, mercatorLatitudeLimit})
		limit = orb.Bound{Min: orb.Point{-corner[0], -corner[1]}, Max: corner}
	case Local:
		return nil
	default:
		return fmt.Errorf("%w: unsupported coordinate reference %q", ErrCoordinateMismatch, crs)
	}

	limit = limit.Pad(math.Max(limit.Right(), limit.Top()) * extentSlack)
	if !limit.Contains(b.Min) || !limit.Contains(b.Max) {
		return fmt.Errorf("%w: extent %v..%v is outside the valid range of %s", ErrCoordinateMismatch, b.Min, b.Max, crs)
	}
	return nil
}

// CheckProjectable reports geometry in from that to could only represent by
// clamping it. World Mercator flattens everything beyond its latitude limit.
func CheckProjectable(g orb.Geometry, from, to CRS) error {
	if g == nil || from != WGS84 || to != WorldMercator {
		return nil
	}
	b := g.Bound()
	if b.Min[1] < -mercatorLatitudeLimit || b.Max[1] > mercatorLatitudeLimit {
		return fmt.Errorf("%w: latitudes %v..%v are beyond the ±%v° limit of %s",
			ErrCoordinateMismatch, b.Min[1], b.Max[1], mercatorLatitudeLimit, to)
	}
	return nil
}

func wgs84Projections(crs CRS) (toWGS, fromWGS orb.Projection, err error) {
	switch crs {
	case WGS84:
		return identity, identity, nil
	case WebMercator:
		return project.Mercator.ToWGS84, project.WGS84.ToMercator, nil
	case WorldMercator:
		return ellipsoidalInverse, ellipsoidalForward, nil
	case Local:
		return nil, nil, fmt.Errorf("%w: %s has no geographic anchor", ErrCoordinateMismatch, crs)
	}
	return nil, nil, fmt.Errorf("%w: unsupported coordinate reference %q", ErrCoordinateMismatch, crs)
}

func chain(first, second orb.Projection) orb.Projection {
	return func(p orb.Point) orb.Point {
		return second(first(p))
	}
}

func identity(p orb.Point) orb.Point { return p }

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
