package stats

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/royalcat/autobuild/geomodel"
	"github.com/royalcat/autobuild/geoproj"
	"github.com/royalcat/autobuild/placement"
)

func TestSummarize(t *testing.T) {
	samples := []Sample{
		{HeapAlloc: 10, CPUPercent: 50, NumGoroutine: 3, Buildings: 1, Attempts: 10},
		{HeapAlloc: 30, CPUPercent: 100, NumGoroutine: 2, Buildings: 5, Attempts: 40},
	}

	sum := summarize(samples, 2*time.Second, time.Second)
	if sum.PeakHeapAlloc != 30 || sum.PeakGoroutines != 3 || sum.AvgCPUPercent != 75 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Buildings != 5 || sum.Attempts != 40 || sum.AttemptsPerSec != 20 {
		t.Fatalf("unexpected progress %+v", sum)
	}
}

func TestEvenly(t *testing.T) {
	samples := make([]Sample, 1000)
	for i := range samples {
		samples[i].Attempts = i
	}
	out := evenly(samples, 100)
	if len(out) != 100 || out[0].Attempts != 0 || out[99].Attempts != 999 {
		t.Fatalf("unexpected selection: %d samples from %d to %d", len(out), out[0].Attempts, out[len(out)-1].Attempts)
	}
}

func TestCollector(t *testing.T) {
	c, err := NewCollector(time.Millisecond)
	if err != nil {
		t.Skipf("process info unavailable: %v", err)
	}

	c.Start()
	c.Observe(placement.Progress{Buildings: 7, Attempts: 70})
	time.Sleep(5 * time.Millisecond)
	stats := c.Stop()

	if stats.Summary.SampleCount < 2 || stats.Summary.Buildings != 7 {
		t.Fatalf("unexpected stats %+v", stats.Summary)
	}

	var buf bytes.Buffer
	if err := stats.WriteReport(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Buildings:       7") {
		t.Fatalf("report is missing placement progress:\n%s", buf.String())
	}
}

func TestStopTwice(t *testing.T) {
	c, err := NewCollector(time.Millisecond)
	if err != nil {
		t.Skipf("process info unavailable: %v", err)
	}

	c.Start()
	first := c.Stop()
	second := c.Stop()
	if first.EndTime != second.EndTime || first.Summary.SampleCount != second.Summary.SampleCount {
		t.Fatalf("second stop changed the stats: %+v and %+v", first.Summary, second.Summary)
	}
}

func TestCollectorSeesRejectedAttempts(t *testing.T) {
	c, err := NewCollector(time.Hour)
	if err != nil {
		t.Skipf("process info unavailable: %v", err)
	}

	cfg := placement.ConfigDefault()
	cfg.WorkingCRS = geoproj.Local
	cfg.MinDistance = 0.1
	cfg.MaxConsecutiveRejections = 3000
	cfg.Seed = 1
	engine, err := placement.NewEngine(cfg, placement.WithObserver(c.Observe))
	if err != nil {
		t.Fatal(err)
	}

	unit := orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	c.Start()
	layout, err := engine.Place(context.Background(),
		geomodel.Parcel{Polygons: orb.MultiPolygon{unit}, CRS: geoproj.Local},
		geomodel.RestrictedAreas{Polygons: []orb.Polygon{unit}, CRS: geoproj.Local},
	)
	if err != nil {
		t.Fatal(err)
	}
	stats := c.Stop()

	if layout.Attempts != 3000 || stats.Summary.Attempts != layout.Attempts {
		t.Fatalf("summary counted %d attempts, layout has %d", stats.Summary.Attempts, layout.Attempts)
	}
	if stats.Summary.AttemptsPerSec <= 0 {
		t.Fatalf("expected an attempt rate, got %f", stats.Summary.AttemptsPerSec)
	}
}
