package placement

// FootprintMinDistanceSquared is the amount of buildable area one building
// consumes: a square cell with the minimal spacing as its side. It is a
// proxy in working CRS units, not the footprint of a real building.
func FootprintMinDistanceSquared(minDistance float64) float64 {
	return minDistance * minDistance
}

// Budget tracks the buildable area left in a run. Remaining never grows.
type Budget struct {
	total     float64
	remaining float64
	footprint float64
}

// NewBudget allots parcelArea*density/100 to a run.
func NewBudget(parcelArea, density, minDistance float64) *Budget {
	total := parcelArea * density / 100
	return &Budget{
		total:     total,
		remaining: total,
		footprint: FootprintMinDistanceSquared(minDistance),
	}
}

// Consume deducts one building.
func (b *Budget) Consume() {
	b.remaining -= b.footprint
}

func (b *Budget) Total() float64     { return b.total }
func (b *Budget) Remaining() float64 { return b.remaining }
func (b *Budget) Footprint() float64 { return b.footprint }

func (b *Budget) Exhausted() bool {
	return b.remaining <= 0
}
