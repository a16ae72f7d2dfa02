package placement

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
	"github.com/royalcat/autobuild/bordertree"
)

// Verdict is the outcome of checking one candidate. Rejections carry the
// first predicate that failed.
type Verdict uint8

const (
	Accepted Verdict = iota
	OutsideParcel
	Restricted
	TooClose
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case OutsideParcel:
		return "outside_parcel"
	case Restricted:
		return "restricted"
	case TooClose:
		return "too_close"
	}
	return "unknown"
}

// IsValid is the plain form of the placement rule: the candidate is inside
// the parcel, outside every restricted polygon and not closer than
// minDistance to any placed point. It scans everything linearly.
func IsValid(candidate orb.Point, parcel orb.MultiPolygon, placed []orb.Point, restricted []orb.Polygon, minDistance float64) bool {
	if !planar.MultiPolygonContains(parcel, candidate) {
		return false
	}
	for _, r := range restricted {
		if planar.PolygonContains(r, candidate) {
			return false
		}
	}
	for _, q := range placed {
		if planar.Distance(candidate, q) < minDistance {
			return false
		}
	}
	return true
}

// Checker answers the same question as IsValid with indexes. Parcel and
// restriction lookups are read-only and may run concurrently, Add and
// Check must not.
type Checker struct {
	parcel      orb.MultiPolygon
	bound       orb.Bound
	restricted  *bordertree.BorderTree[int]
	placed      *quadtree.Quadtree
	minDistance float64

	buf []orb.Pointer
}

// NewChecker expects parcel and restricted in the same planar reference.
func NewChecker(parcel orb.MultiPolygon, restricted []orb.Polygon, minDistance float64) *Checker {
	bound := parcel.Bound()

	tree := bordertree.NewBorderTree[int](bound)
	for i, r := range restricted {
		// polygons that miss the parcel can never reject anything
		if !r.Bound().Intersects(bound) {
			continue
		}
		tree.InsertPolygon(i, r)
	}

	return &Checker{
		parcel:      parcel,
		bound:       bound,
		restricted:  tree,
		placed:      quadtree.New(bound),
		minDistance: minDistance,
	}
}

// Admissible runs the parcel and restriction predicates only.
func (c *Checker) Admissible(p orb.Point) Verdict {
	if !c.bound.Contains(p) || !planar.MultiPolygonContains(c.parcel, p) {
		return OutsideParcel
	}
	if c.restricted.Contains(p) {
		return Restricted
	}
	return Accepted
}

// Spaced reports whether p keeps minDistance to every added point.
func (c *Checker) Spaced(p orb.Point) bool {
	d := c.minDistance
	box := orb.Bound{
		Min: orb.Point{p[0] - d, p[1] - d},
		Max: orb.Point{p[0] + d, p[1] + d},
	}

	c.buf = c.placed.InBound(c.buf[:0], box)
	for _, q := range c.buf {
		if planar.Distance(p, q.Point()) < d {
			return false
		}
	}
	return true
}

func (c *Checker) Check(p orb.Point) Verdict {
	if v := c.Admissible(p); v != Accepted {
		return v
	}
	if !c.Spaced(p) {
		return TooClose
	}
	return Accepted
}

// Add records an accepted point. Points outside the parcel bound are
// ignored, Check never accepts those.
func (c *Checker) Add(p orb.Point) {
	_ = c.placed.Add(p)
}
