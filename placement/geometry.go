package placement

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/royalcat/autobuild/geomodel"
)

// ValidateParcel rejects parcels the engine cannot sample from.
func ValidateParcel(parcel geomodel.Parcel) error {
	if len(parcel.Polygons) == 0 {
		return fmt.Errorf("%w: parcel is empty", ErrInvalidGeometry)
	}
	for i, poly := range parcel.Polygons {
		if err := validatePolygon(poly); err != nil {
			return fmt.Errorf("parcel polygon %d: %w", i, err)
		}
	}
	for i := range parcel.Polygons {
		for j := i + 1; j < len(parcel.Polygons); j++ {
			if polygonsOverlap(parcel.Polygons[i], parcel.Polygons[j]) {
				return fmt.Errorf("%w: parcel polygons %d and %d overlap", ErrInvalidGeometry, i, j)
			}
		}
	}
	if Area(parcel.Polygons) <= 0 {
		return fmt.Errorf("%w: parcel has no area", ErrInvalidGeometry)
	}
	return nil
}

// ValidateRestricted accepts an empty collection.
func ValidateRestricted(restricted geomodel.RestrictedAreas) error {
	for i, poly := range restricted.Polygons {
		if err := validatePolygon(poly); err != nil {
			return fmt.Errorf("restricted polygon %d: %w", i, err)
		}
	}
	return nil
}

// Area sums absolute polygon areas, holes subtracted.
func Area(mp orb.MultiPolygon) float64 {
	total := 0.0
	for _, poly := range mp {
		total += math.Abs(planar.Area(poly))
	}
	return total
}

// PolygonWithin reports whether every vertex of inner lies in outer.
// Boundary vertices count as inside.
func PolygonWithin(inner orb.Polygon, outer orb.MultiPolygon) bool {
	if len(inner) == 0 {
		return false
	}
	for _, ring := range inner {
		for _, p := range ring {
			if !planar.MultiPolygonContains(outer, p) {
				return false
			}
		}
	}
	return true
}

func validatePolygon(poly orb.Polygon) error {
	if len(poly) == 0 {
		return fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}
	for i, ring := range poly {
		if err := validateRing(ring); err != nil {
			return fmt.Errorf("ring %d: %w", i, err)
		}
	}
	for i, hole := range poly[1:] {
		if !holeWithin(compact(hole), compact(poly[0])) {
			return fmt.Errorf("%w: hole %d is not inside its shell", ErrInvalidGeometry, i+1)
		}
		for j, other := range poly[i+2:] {
			if ringsOverlap(compact(hole), compact(other)) {
				return fmt.Errorf("%w: holes %d and %d overlap", ErrInvalidGeometry, i+1, i+j+2)
			}
		}
	}
	if math.Abs(planar.Area(poly)) <= 0 {
		return fmt.Errorf("%w: polygon has no area", ErrInvalidGeometry)
	}
	return nil
}

func validateRing(ring orb.Ring) error {
	for _, p := range ring {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return fmt.Errorf("%w: non-finite coordinate %v", ErrInvalidGeometry, p)
		}
	}
	if len(ring) < 4 {
		return fmt.Errorf("%w: ring has %d points, need at least 4", ErrInvalidGeometry, len(ring))
	}
	if !ring.Closed() {
		return fmt.Errorf("%w: ring is not closed", ErrInvalidGeometry)
	}

	ring = compact(ring)
	if len(ring) < 4 {
		return fmt.Errorf("%w: ring collapses to %d distinct points", ErrInvalidGeometry, len(ring)-1)
	}
	if selfIntersects(ring) {
		return fmt.Errorf("%w: ring intersects itself", ErrInvalidGeometry)
	}
	return nil
}

// compact drops consecutive duplicate vertices.
func compact(ring orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(ring))
	for i, p := range ring {
		if i > 0 && p == ring[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// selfIntersects compares every pair of non-adjacent edges of a closed ring.
func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // edges
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // first and last edges share the closing vertex
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

// holeWithin allows the hole to touch the shell but not to cross it.
func holeWithin(hole, shell orb.Ring) bool {
	for _, p := range hole {
		if !planar.RingContains(shell, p) {
			return false
		}
	}
	return !ringsCross(hole, shell)
}

// ringsOverlap reports whether the areas enclosed by a and b share more
// than their boundaries.
func ringsOverlap(a, b orb.Ring) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	if ringsCross(a, b) {
		return true
	}
	return anyInside(interiorPoints(a), func(p orb.Point) bool { return planar.RingContains(b, p) }) ||
		anyInside(interiorPoints(b), func(p orb.Point) bool { return planar.RingContains(a, p) })
}

// polygonsOverlap is ringsOverlap for polygons with holes. A part lying
// in a hole of another part does not overlap it.
func polygonsOverlap(a, b orb.Polygon) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for _, ra := range a {
		for _, rb := range b {
			if ringsCross(compact(ra), compact(rb)) {
				return true
			}
		}
	}
	return anyInside(interiorPoints(compact(a[0])), func(p orb.Point) bool { return planar.PolygonContains(b, p) }) ||
		anyInside(interiorPoints(compact(b[0])), func(p orb.Point) bool { return planar.PolygonContains(a, p) })
}

func anyInside(points []orb.Point, contains func(orb.Point) bool) bool {
	for _, p := range points {
		if contains(p) {
			return true
		}
	}
	return false
}

// interiorNudge is the offset of interior points from an edge midpoint,
// relative to the edge length.
const interiorNudge = 1e-6

// interiorPoints returns one point just inside the ring next to each edge.
func interiorPoints(ring orb.Ring) []orb.Point {
	side := float64(ring.Orientation())
	points := make([]orb.Point, 0, len(ring)-1)
	for i := 0; i+1 < len(ring); i++ {
		a, b := ring[i], ring[i+1]
		points = append(points, orb.Point{
			(a[0]+b[0])/2 - side*interiorNudge*(b[1]-a[1]),
			(a[1]+b[1])/2 + side*interiorNudge*(b[0]-a[0]),
		})
	}
	return points
}

// ringsCross reports a proper crossing between any edges of a and b.
// Touching and collinear edges do not cross.
func ringsCross(a, b orb.Ring) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsCross(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(a, b, c, d orb.Point) bool {
	return orientation(a, b, c)*orientation(a, b, d) < 0 &&
		orientation(c, d, a)*orientation(c, d, b) < 0
}

func segmentsIntersect(a, b, c, d orb.Point) bool {
	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)

	if o1 != o2 && o3 != o4 {
		return true
	}

	return (o1 == 0 && onSegment(a, c, b)) ||
		(o2 == 0 && onSegment(a, d, b)) ||
		(o3 == 0 && onSegment(c, a, d)) ||
		(o4 == 0 && onSegment(c, b, d))
}

func orientation(a, b, c orb.Point) int {
	v := (b[1]-a[1])*(c[0]-b[0]) - (b[0]-a[0])*(c[1]-b[1])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment reports whether q lies in the bounding box of pr, q collinear.
func onSegment(p, q, r orb.Point) bool {
	return q[0] <= math.Max(p[0], r[0]) && q[0] >= math.Min(p[0], r[0]) &&
		q[1] <= math.Max(p[1], r[1]) && q[1] >= math.Min(p[1], r[1])
}
