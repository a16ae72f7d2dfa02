package bordertree

import (
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/qtree"
)

// BorderTree indexes polygons by their bounds and answers exact
// point-in-polygon queries. Safe for concurrent use.
type BorderTree[Data any] struct {
	mu      sync.RWMutex
	frame   frame
	borders []border[Data]
	qt      qtree.QTree
}

type border[D any] struct {
	Data    D
	Polygon orb.MultiPolygon
}

// NewBorderTree creates a tree for geometry that lives mostly inside world.
// Coordinates are rescaled into lon/lat sized space before they reach the
// quadtree, so projected metres and small local planes index equally well.
// Geometry outside world is still answered exactly, just less selectively.
func NewBorderTree[Data any](world orb.Bound) *BorderTree[Data] {
	return &BorderTree[Data]{frame: newFrame(world)}
}

func (bt *BorderTree[Data]) InsertBorder(data Data, b orb.MultiPolygon) {
	bound := b.Bound()
	min, max := bt.frame.toTree(bound.Min, -treePad), bt.frame.toTree(bound.Max, treePad)

	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.qt.Insert(min, max, len(bt.borders))
	bt.borders = append(bt.borders, border[Data]{Data: data, Polygon: b})
}

func (bt *BorderTree[Data]) InsertPolygon(data Data, p orb.Polygon) {
	bt.InsertBorder(data, orb.MultiPolygon{p})
}

// QueryPoint returns the data of the first border containing point.
// Points on a border edge are inside.
func (bt *BorderTree[Data]) QueryPoint(point orb.Point) (Data, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	var out Data
	found := false

	q := bt.frame.toTree(point, 0)
	bt.qt.Search(q, q, func(_, _ [2]float64, data interface{}) bool {
		id := data.(int)

		if planar.MultiPolygonContains(bt.borders[id].Polygon, point) {
			out = bt.borders[id].Data
			found = true
			return false
		}

		return true
	})

	return out, found
}

func (bt *BorderTree[Data]) Contains(point orb.Point) bool {
	_, ok := bt.QueryPoint(point)
	return ok
}

func (bt *BorderTree[Data]) Len() int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return len(bt.borders)
}

// treePad widens stored bounds so rounding in the frame cannot drop
// points that lie exactly on a border edge.
const treePad = 1e-9

// frame maps world onto [-180,180]x[-90,90], clamping outside points.
// Clamping is monotone, so a point inside a bound stays inside the mapped
// bound and no candidate border is ever missed.
type frame struct {
	origin orb.Point
	scale  float64
}

func newFrame(world orb.Bound) frame {
	w, h := world.Right()-world.Left(), world.Top()-world.Bottom()
	scale := math.Min(360/w, 180/h)
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		scale = 1
	}
	return frame{origin: world.Min, scale: scale}
}

func (f frame) toTree(p orb.Point, pad float64) [2]float64 {
	return [2]float64{
		clamp(-180+(p[0]-f.origin[0])*f.scale+pad, -180, 180),
		clamp(-90+(p[1]-f.origin[1])*f.scale+pad, -90, 90),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
