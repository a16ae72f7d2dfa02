package placement

import (
	"math/rand"

	"github.com/fogleman/poissondisc"
	"github.com/paulmach/orb"
)

// Sampler produces candidate points. Candidates are not guaranteed to be
// valid, every one of them still goes through the Checker.
type Sampler interface {
	Next() orb.Point
}

func NewSampler(kind SamplerKind, bound orb.Bound, minDistance float64, rnd *rand.Rand) Sampler {
	uniform := &uniformSampler{bound: bound, rnd: rnd}
	if kind == SamplerPoisson {
		return &poissonSampler{uniform: uniform, r: minDistance}
	}
	return uniform
}

type uniformSampler struct {
	bound orb.Bound
	rnd   *rand.Rand
}

func (s *uniformSampler) Next() orb.Point {
	return orb.Point{
		s.bound.Min[0] + s.rnd.Float64()*(s.bound.Max[0]-s.bound.Min[0]),
		s.bound.Min[1] + s.rnd.Float64()*(s.bound.Max[1]-s.bound.Min[1]),
	}
}

// Tile side in multiples of r. Keeps one poisson round near 64*64/2 points
// however large the parcel is.
const poissonTileCells = 64

// Tries per active point, as in Bridson's algorithm.
const poissonTries = 30

// poissonSampler serves shuffled poisson-disc point sets drawn over random
// tiles of the bound. A fresh set is drawn when the previous one runs out.
type poissonSampler struct {
	uniform *uniformSampler
	r       float64
	pending []orb.Point
}

func (s *poissonSampler) Next() orb.Point {
	if len(s.pending) == 0 {
		s.refill()
	}
	if len(s.pending) == 0 {
		return s.uniform.Next()
	}

	p := s.pending[len(s.pending)-1]
	s.pending = s.pending[:len(s.pending)-1]
	return p
}

func (s *poissonSampler) refill() {
	tile := s.tile()
	rnd := s.uniform.rnd

	points := poissondisc.Sample(tile.Min[0], tile.Min[1], tile.Max[0], tile.Max[1], s.r, poissonTries, rnd)
	for _, p := range points {
		s.pending = append(s.pending, orb.Point{p.X, p.Y})
	}
	rnd.Shuffle(len(s.pending), func(i, j int) {
		s.pending[i], s.pending[j] = s.pending[j], s.pending[i]
	})
}

func (s *poissonSampler) tile() orb.Bound {
	bound := s.uniform.bound
	side := s.r * poissonTileCells

	tile := bound
	for axis := 0; axis < 2; axis++ {
		if bound.Max[axis]-bound.Min[axis] <= side {
			continue
		}
		start := bound.Min[axis] + s.uniform.rnd.Float64()*(bound.Max[axis]-bound.Min[axis]-side)
		tile.Min[axis] = start
		tile.Max[axis] = start + side
	}
	return tile
}
