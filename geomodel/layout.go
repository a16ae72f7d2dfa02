package geomodel

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/royalcat/autobuild/geoproj"
)

// Parcel is the area buildings are placed into.
type Parcel struct {
	Polygons orb.MultiPolygon
	CRS      geoproj.CRS
}

// RestrictedAreas are polygons where no building may be placed.
// An empty collection means no restrictions, CRS may be left empty then.
type RestrictedAreas struct {
	Polygons []orb.Polygon
	CRS      geoproj.CRS
}

func (r RestrictedAreas) Empty() bool {
	return len(r.Polygons) == 0
}

// MultiPolygon returns the restricted polygons as one geometry. The
// polygons are shared, not copied.
func (r RestrictedAreas) MultiPolygon() orb.MultiPolygon {
	return orb.MultiPolygon(r.Polygons)
}

type Status uint8

const (
	// StatusComplete means the whole buildable-area budget was consumed.
	StatusComplete Status = iota
	// StatusNonConvergence means the attempts cap stopped the run and the
	// buildings are a partial, still valid, layout.
	StatusNonConvergence
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusNonConvergence:
		return "non_convergence"
	}
	return "unknown"
}

// Rejections counts discarded candidates by the first predicate they failed.
type Rejections struct {
	OutsideParcel int `json:"outside_parcel"`
	Restricted    int `json:"restricted"`
	TooClose      int `json:"too_close"`
}

func (r Rejections) Total() int {
	return r.OutsideParcel + r.Restricted + r.TooClose
}

// Layout is the immutable result of one placement run.
type Layout struct {
	RunID string

	// Buildings are in CRS, the reference the parcel was supplied in.
	Buildings []orb.Point
	CRS       geoproj.CRS

	// Planar holds the same buildings in the working reference.
	Planar     []orb.Point
	WorkingCRS geoproj.CRS

	Status     Status
	Attempts   int
	Rejections Rejections

	Density     float64
	MinDistance float64

	// ParcelArea, Budget and BudgetRemaining are in working CRS units.
	// The budget is consumed in MinDistance^2 steps, not real footprints.
	ParcelArea      float64
	Budget          float64
	BudgetRemaining float64

	Elapsed time.Duration
}

func (l *Layout) Converged() bool {
	return l.Status == StatusComplete
}

// Summary is the part of a layout reported next to the buildings.
func (l *Layout) Summary() LayoutSummary {
	return LayoutSummary{
		RunID:           l.RunID,
		Status:          l.Status.String(),
		Buildings:       len(l.Buildings),
		Attempts:        l.Attempts,
		Rejections:      l.Rejections,
		CRS:             l.CRS.String(),
		WorkingCRS:      l.WorkingCRS.String(),
		Density:         l.Density,
		MinDistance:     l.MinDistance,
		ParcelArea:      l.ParcelArea,
		Budget:          l.Budget,
		BudgetRemaining: l.BudgetRemaining,
		ElapsedMs:       l.Elapsed.Milliseconds(),
	}
}

type LayoutSummary struct {
	RunID           string     `json:"run_id"`
	Status          string     `json:"status"`
	Buildings       int        `json:"buildings"`
	Attempts        int        `json:"attempts"`
	Rejections      Rejections `json:"rejections"`
	CRS             string     `json:"crs"`
	WorkingCRS      string     `json:"working_crs"`
	Density         float64    `json:"density"`
	MinDistance     float64    `json:"min_distance"`
	ParcelArea      float64    `json:"parcel_area"`
	Budget          float64    `json:"budget"`
	BudgetRemaining float64    `json:"budget_remaining"`
	ElapsedMs       int64      `json:"elapsed_ms"`
}
