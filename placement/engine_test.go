package placement_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/royalcat/autobuild/geomodel"
	"github.com/royalcat/autobuild/geoproj"
	"github.com/royalcat/autobuild/placement"
	"github.com/thejerf/slogassert"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

func unitParcel() geomodel.Parcel {
	return geomodel.Parcel{Polygons: orb.MultiPolygon{square(0, 0, 1, 1)}, CRS: geoproj.Local}
}

func localConfig(density, minDistance float64) placement.Config {
	cfg := placement.ConfigDefault()
	cfg.Density = density
	cfg.MinDistance = minDistance
	cfg.WorkingCRS = geoproj.Local
	cfg.Seed = 42
	return cfg
}

func place(t *testing.T, cfg placement.Config, parcel geomodel.Parcel, restricted geomodel.RestrictedAreas, opts ...placement.Option) *geomodel.Layout {
	t.Helper()

	engine, err := placement.NewEngine(cfg, opts...)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	layout, err := engine.Place(context.Background(), parcel, restricted)
	if err != nil {
		t.Fatalf("unexpected placement error: %v", err)
	}
	return layout
}

func checkSpacing(t *testing.T, points []orb.Point, minDistance float64) {
	t.Helper()
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			if d := planar.Distance(points[i], points[j]); d < minDistance {
				t.Fatalf("buildings %d and %d are %f apart", i, j, d)
			}
		}
	}
}

func TestUnitSquare(t *testing.T) {
	layout := place(t, localConfig(10, 0.1), unitParcel(), geomodel.RestrictedAreas{})

	if layout.Status != geomodel.StatusComplete {
		t.Fatalf("expected complete layout, got %s", layout.Status)
	}
	// budget 0.1 consumed in 0.01 steps
	if len(layout.Buildings) != 10 {
		t.Fatalf("expected 10 buildings, got %d", len(layout.Buildings))
	}
	for _, p := range layout.Buildings {
		if p[0] < 0 || p[0] > 1 || p[1] < 0 || p[1] > 1 {
			t.Fatalf("building %v is outside the unit square", p)
		}
	}
	checkSpacing(t, layout.Buildings, 0.1)

	if layout.ParcelArea != 1 || layout.BudgetRemaining > 0 {
		t.Fatalf("unexpected budget accounting: area %f remaining %f", layout.ParcelArea, layout.BudgetRemaining)
	}
	if layout.Attempts != len(layout.Buildings)+layout.Rejections.Total() {
		t.Fatalf("attempts %d do not add up with %d buildings and %d rejections",
			layout.Attempts, len(layout.Buildings), layout.Rejections.Total())
	}
	if layout.RunID == "" || layout.CRS != geoproj.Local {
		t.Fatalf("layout is missing run metadata")
	}
}

func centerQuarter() geomodel.RestrictedAreas {
	return geomodel.RestrictedAreas{
		Polygons: []orb.Polygon{square(0.25, 0.25, 0.75, 0.75)},
		CRS:      geoproj.Local,
	}
}

func outsideCenter(t *testing.T, points []orb.Point) {
	t.Helper()
	for _, p := range points {
		if p[0] >= 0.25 && p[0] <= 0.75 && p[1] >= 0.25 && p[1] <= 0.75 {
			t.Fatalf("building %v is inside the restricted quarter", p)
		}
	}
}

func TestRestrictedCenter(t *testing.T) {
	layout := place(t, localConfig(20, 0.05), unitParcel(), centerQuarter())

	if layout.Status != geomodel.StatusComplete || len(layout.Buildings) != 80 {
		t.Fatalf("expected 80 buildings in a complete layout, got %d %s", len(layout.Buildings), layout.Status)
	}
	outsideCenter(t, layout.Buildings)
	checkSpacing(t, layout.Buildings, 0.05)

	if layout.Rejections.Restricted == 0 {
		t.Fatalf("a quarter of all candidates should hit the restriction")
	}
}

func TestFullyRestricted(t *testing.T) {
	cfg := localConfig(30, 0.1)
	cfg.MaxConsecutiveRejections = 500

	restricted := geomodel.RestrictedAreas{Polygons: []orb.Polygon{square(-1, -1, 2, 2)}, CRS: geoproj.Local}
	layout := place(t, cfg, unitParcel(), restricted)

	if layout.Status != geomodel.StatusNonConvergence {
		t.Fatalf("expected non convergence, got %s", layout.Status)
	}
	if len(layout.Buildings) != 0 {
		t.Fatalf("expected no buildings, got %d", len(layout.Buildings))
	}
	if layout.Attempts != 500 || layout.Rejections.Restricted != 500 {
		t.Fatalf("expected 500 restricted attempts, got %d %+v", layout.Attempts, layout.Rejections)
	}
}

func TestMaxAttempts(t *testing.T) {
	cfg := localConfig(100, 0.1)
	cfg.MaxConsecutiveRejections = 0
	cfg.MaxAttempts = 50

	layout := place(t, cfg, unitParcel(), geomodel.RestrictedAreas{})
	if layout.Status != geomodel.StatusNonConvergence || layout.Attempts != 50 {
		t.Fatalf("expected to stop after 50 attempts, got %d %s", layout.Attempts, layout.Status)
	}
	checkSpacing(t, layout.Buildings, 0.1)
}

func TestDensityBoundaries(t *testing.T) {
	_, err := placement.NewEngine(localConfig(0, 0.1))
	if !errors.Is(err, placement.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for zero density, got %v", err)
	}

	layout := place(t, localConfig(1e-9, 0.1), unitParcel(), geomodel.RestrictedAreas{})
	if layout.Status != geomodel.StatusComplete || len(layout.Buildings) != 1 {
		t.Fatalf("tiny density should place exactly one building, got %d %s", len(layout.Buildings), layout.Status)
	}
}

func TestMonotonicProgress(t *testing.T) {
	var (
		last      placement.Progress
		remaining = 0.11
		calls     = 0
		finals    = 0
	)
	observer := func(p placement.Progress) {
		calls++
		if p.Buildings != last.Buildings && p.Buildings != last.Buildings+1 {
			t.Errorf("buildings jumped from %d to %d", last.Buildings, p.Buildings)
		}
		if p.Attempts < last.Attempts {
			t.Errorf("attempts went back from %d to %d", last.Attempts, p.Attempts)
		}
		if p.BudgetRemaining > remaining {
			t.Errorf("budget grew from %f to %f", remaining, p.BudgetRemaining)
		}
		if p.Final {
			finals++
		}
		last, remaining = p, p.BudgetRemaining
	}

	layout := place(t, localConfig(10, 0.1), unitParcel(), geomodel.RestrictedAreas{}, placement.WithObserver(observer))
	if calls < len(layout.Buildings)+1 {
		t.Fatalf("observer saw %d reports, layout has %d buildings", calls, len(layout.Buildings))
	}
	if finals != 1 || !last.Final {
		t.Fatalf("expected exactly one final report last, got %d", finals)
	}
	if last.Buildings != len(layout.Buildings) || last.Attempts != layout.Attempts {
		t.Fatalf("final report %+v does not match the layout", last)
	}
}

func TestProgressCountsRejections(t *testing.T) {
	for _, workers := range []int{1, 3} {
		cfg := localConfig(30, 0.1)
		cfg.MaxConsecutiveRejections = 5000
		cfg.Workers = workers

		var reports []placement.Progress
		observer := func(p placement.Progress) { reports = append(reports, p) }

		restricted := geomodel.RestrictedAreas{Polygons: []orb.Polygon{square(-1, -1, 2, 2)}, CRS: geoproj.Local}
		layout := place(t, cfg, unitParcel(), restricted, placement.WithObserver(observer))

		if len(reports) < 2 {
			t.Fatalf("workers %d: rejected candidates must still be reported, got %d reports", workers, len(reports))
		}
		final := reports[len(reports)-1]
		if !final.Final || final.Attempts != layout.Attempts || final.Attempts != 5000 {
			t.Fatalf("workers %d: unexpected final report %+v for %d attempts", workers, final, layout.Attempts)
		}
	}
}

func TestConsecutiveRejectionsStopFilling(t *testing.T) {
	cfg := localConfig(100, 0.1)
	cfg.MaxAttempts = 0
	cfg.MaxConsecutiveRejections = 2000

	layout := place(t, cfg, unitParcel(), geomodel.RestrictedAreas{})

	// random sequential packing jams well before the 100 buildings the
	// budget asks for
	if layout.Status != geomodel.StatusNonConvergence {
		t.Fatalf("expected non convergence, got %s with %d buildings", layout.Status, len(layout.Buildings))
	}
	if len(layout.Buildings) == 0 || len(layout.Buildings) >= 100 {
		t.Fatalf("expected a partial layout, got %d buildings", len(layout.Buildings))
	}
	if layout.BudgetRemaining <= 0 {
		t.Fatalf("a partial layout must leave budget, got %f", layout.BudgetRemaining)
	}
	checkSpacing(t, layout.Planar, 0.1)

	if _, err := placement.Verify(layout.Planar, unitParcel().Polygons, nil, 0.1); err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}
}

func TestParallelWorkers(t *testing.T) {
	cfg := localConfig(20, 0.05)
	cfg.Workers = 4

	layout := place(t, cfg, unitParcel(), centerQuarter())

	if layout.Status != geomodel.StatusComplete || len(layout.Buildings) != 80 {
		t.Fatalf("expected 80 buildings in a complete layout, got %d %s", len(layout.Buildings), layout.Status)
	}
	outsideCenter(t, layout.Buildings)
	checkSpacing(t, layout.Buildings, 0.05)
}

func TestPoissonSampler(t *testing.T) {
	cfg := localConfig(20, 0.05)
	cfg.Sampler = placement.SamplerPoisson

	layout := place(t, cfg, unitParcel(), centerQuarter())

	outsideCenter(t, layout.Buildings)
	checkSpacing(t, layout.Buildings, 0.05)

	_, err := placement.Verify(layout.Planar, unitParcel().Polygons, centerQuarter().Polygons, 0.05)
	if err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	a := place(t, localConfig(20, 0.05), unitParcel(), centerQuarter())
	b := place(t, localConfig(20, 0.05), unitParcel(), centerQuarter())

	if len(a.Buildings) != len(b.Buildings) {
		t.Fatalf("same seed produced %d and %d buildings", len(a.Buildings), len(b.Buildings))
	}
	for i := range a.Buildings {
		if a.Buildings[i] != b.Buildings[i] {
			t.Fatalf("same seed diverged at building %d", i)
		}
	}
}

func TestGeographicParcel(t *testing.T) {
	parcel := geomodel.Parcel{
		Polygons: orb.MultiPolygon{square(107.600, 51.800, 107.602, 51.802)},
		CRS:      geoproj.WGS84,
	}
	restricted := geomodel.RestrictedAreas{
		Polygons: []orb.Polygon{square(107.6005, 51.8005, 107.6015, 51.8015)},
		CRS:      geoproj.WGS84,
	}

	layout := place(t, placement.ConfigDefault(), parcel, restricted)

	if layout.CRS != geoproj.WGS84 || layout.WorkingCRS != geoproj.WorldMercator {
		t.Fatalf("unexpected references %s %s", layout.CRS, layout.WorkingCRS)
	}
	if len(layout.Buildings) == 0 || len(layout.Buildings) != len(layout.Planar) {
		t.Fatalf("expected buildings in both references, got %d and %d", len(layout.Buildings), len(layout.Planar))
	}
	for _, p := range layout.Buildings {
		if !planar.MultiPolygonContains(parcel.Polygons, p) {
			t.Fatalf("building %v is outside the parcel", p)
		}
		if planar.PolygonContains(restricted.Polygons[0], p) {
			t.Fatalf("building %v is inside the restricted area", p)
		}
	}
	checkSpacing(t, layout.Planar, 10)
}

func TestInputErrors(t *testing.T) {
	engine, err := placement.NewEngine(placement.ConfigDefault())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	cases := []struct {
		name       string
		parcel     geomodel.Parcel
		restricted geomodel.RestrictedAreas
		expected   error
	}{
		{"empty parcel", geomodel.Parcel{CRS: geoproj.WGS84}, geomodel.RestrictedAreas{}, placement.ErrInvalidGeometry},
		{"missing crs", geomodel.Parcel{Polygons: orb.MultiPolygon{square(0, 0, 1, 1)}}, geomodel.RestrictedAreas{}, placement.ErrCoordinateMismatch},
		{"local parcel", unitParcel(), geomodel.RestrictedAreas{}, placement.ErrCoordinateMismatch},
		{
			"metres labelled as degrees",
			geomodel.Parcel{Polygons: orb.MultiPolygon{square(11_977_000, 6_760_000, 11_978_000, 6_761_000)}, CRS: geoproj.WGS84},
			geomodel.RestrictedAreas{},
			placement.ErrCoordinateMismatch,
		},
		{
			"parcel beyond the mercator limit",
			geomodel.Parcel{Polygons: orb.MultiPolygon{square(10, 89.6, 10.01, 89.61)}, CRS: geoproj.WGS84},
			geomodel.RestrictedAreas{},
			placement.ErrCoordinateMismatch,
		},
		{
			"parcel crossing the mercator limit",
			geomodel.Parcel{Polygons: orb.MultiPolygon{square(10, 89.4, 10.01, 89.6)}, CRS: geoproj.WGS84},
			geomodel.RestrictedAreas{},
			placement.ErrCoordinateMismatch,
		},
		{
			"restricted without crs",
			geomodel.Parcel{Polygons: orb.MultiPolygon{square(107.6, 51.8, 107.602, 51.802)}, CRS: geoproj.WGS84},
			geomodel.RestrictedAreas{Polygons: []orb.Polygon{square(107.6, 51.8, 107.601, 51.801)}},
			placement.ErrCoordinateMismatch,
		},
		{
			"broken restricted ring",
			geomodel.Parcel{Polygons: orb.MultiPolygon{square(107.6, 51.8, 107.602, 51.802)}, CRS: geoproj.WGS84},
			geomodel.RestrictedAreas{Polygons: []orb.Polygon{{orb.Ring{{107.6, 51.8}, {107.601, 51.8}, {107.6, 51.8}}}}, CRS: geoproj.WGS84},
			placement.ErrInvalidGeometry,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			layout, err := engine.Place(ctx, c.parcel, c.restricted)
			if !errors.Is(err, c.expected) {
				t.Fatalf("expected %v, got %v", c.expected, err)
			}
			if layout != nil {
				t.Fatalf("no layout expected on error")
			}
		})
	}
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 3} {
		cfg := localConfig(10, 0.1)
		cfg.Workers = workers

		engine, err := placement.NewEngine(cfg)
		if err != nil {
			t.Fatal(err)
		}
		_, err = engine.Place(ctx, unitParcel(), geomodel.RestrictedAreas{})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("workers %d: expected context canceled, got %v", workers, err)
		}
	}
}

func TestNonConvergenceIsLogged(t *testing.T) {
	handler := slogassert.New(t, slog.LevelWarn, nil)

	cfg := localConfig(30, 0.1)
	cfg.MaxConsecutiveRejections = 100
	restricted := geomodel.RestrictedAreas{Polygons: []orb.Polygon{square(0, 0, 1, 1)}, CRS: geoproj.Local}

	place(t, cfg, unitParcel(), restricted, placement.WithLogger(slog.New(handler)))

	handler.AssertMessage("Placement did not converge")
}
