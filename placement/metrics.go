package placement

import (
	"context"
	"time"

	"github.com/royalcat/autobuild/geomodel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/royalcat/autobuild/placement")

type instruments struct {
	runs       metric.Int64Counter
	candidates metric.Int64Counter
	buildings  metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments() (instruments, error) {
	runs, err := meter.Int64Counter("placement_runs_total",
		metric.WithDescription("Finished placement runs by status"))
	if err != nil {
		return instruments{}, err
	}
	candidates, err := meter.Int64Counter("placement_candidates_total",
		metric.WithDescription("Checked candidates by verdict"))
	if err != nil {
		return instruments{}, err
	}
	buildings, err := meter.Int64Counter("placement_buildings_total",
		metric.WithDescription("Accepted buildings"))
	if err != nil {
		return instruments{}, err
	}
	duration, err := meter.Float64Histogram("placement_run_duration_seconds",
		metric.WithUnit("s"))
	if err != nil {
		return instruments{}, err
	}

	return instruments{
		runs:       runs,
		candidates: candidates,
		buildings:  buildings,
		duration:   duration,
	}, nil
}

func (m instruments) record(ctx context.Context, layout *geomodel.Layout, elapsed time.Duration) {
	status := metric.WithAttributes(attribute.String("status", layout.Status.String()))
	m.runs.Add(ctx, 1, status)
	m.duration.Record(ctx, elapsed.Seconds(), status)
	m.buildings.Add(ctx, int64(len(layout.Buildings)))

	m.candidates.Add(ctx, int64(len(layout.Buildings)), verdictAttr(Accepted))
	m.candidates.Add(ctx, int64(layout.Rejections.OutsideParcel), verdictAttr(OutsideParcel))
	m.candidates.Add(ctx, int64(layout.Rejections.Restricted), verdictAttr(Restricted))
	m.candidates.Add(ctx, int64(layout.Rejections.TooClose), verdictAttr(TooClose))
}

func verdictAttr(v Verdict) metric.AddOption {
	return metric.WithAttributes(attribute.String("verdict", v.String()))
}
