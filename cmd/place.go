package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/royalcat/autobuild/geoio"
	"github.com/royalcat/autobuild/geomodel"
	"github.com/royalcat/autobuild/geoproj"
	"github.com/royalcat/autobuild/internal/stats"
	"github.com/royalcat/autobuild/internal/telemetry"
	"github.com/royalcat/autobuild/placement"
	"github.com/royalcat/autobuild/render"
	"github.com/royalcat/autobuild/server"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/royalcat/autobuild/cmd")

func place(ctx context.Context, cmd *cli.Command) (err error) {
	log := slog.Default()

	tel, err := telemetry.Setup(ctx, "autobuild", cmd.String("otel.endpoint"))
	if err != nil {
		return fmt.Errorf("error setting up telemetry: %w", err)
	}
	if tel != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Flush(flushCtx); err != nil {
				log.Error("Error flushing telemetry", "error", err)
			}
			_ = tel.Shutdown(flushCtx)
		}()
		log = slog.Default()
	}

	stopProfiling, err := startProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	rc, err := loadRunConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	applyFlags(cmd, &rc)
	if rc.Parcel == "" {
		return errors.New("parcel is required, pass --parcel or set it in the config")
	}

	ctx, span := tracer.Start(ctx, "place", trace.WithAttributes(
		attribute.String("parcel.path", rc.Parcel),
		attribute.Float64("config.density", rc.Density),
		attribute.Float64("config.min_distance", rc.MinDistance),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	parcel, err := geoio.LoadParcel(rc.Parcel, rc.parcelCRS())
	if err != nil {
		return err
	}
	restricted, err := geoio.LoadRestricted(rc.Restricted, rc.restrictedCRS())
	if err != nil {
		return err
	}
	log.Info("Loaded input",
		"parcel", rc.Parcel,
		"parcelPolygons", len(parcel.Polygons),
		"crs", parcel.CRS,
		"restrictedPolygons", len(restricted.Polygons),
	)

	var collector *stats.Collector
	if cmd.String("stats") != "" {
		collector, err = stats.NewCollector(100 * time.Millisecond)
		if err != nil {
			return err
		}
		collector.Start()
		defer collector.Stop()
	}

	var bar *progressBar
	obs := []placement.Observer{}
	if cmd.Bool("progress") {
		bar = newProgressBar(rc.MinDistance)
		bar.Start()
		obs = append(obs, bar.Observe)
	}
	if collector != nil {
		obs = append(obs, collector.Observe)
	}

	engine, err := placement.NewEngine(rc.Config, placement.WithLogger(log), placement.WithObserver(observers(obs...)))
	if err != nil {
		return err
	}

	layout, err := engine.Place(ctx, parcel, restricted)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("run.id", layout.RunID),
		attribute.String("run.status", layout.Status.String()),
		attribute.Int("run.buildings", len(layout.Buildings)),
		attribute.Int("run.attempts", layout.Attempts),
	)

	printSummary(layout)
	if !layout.Converged() {
		log.Warn("Layout is partial, the attempt cap stopped placement", "remaining", layout.BudgetRemaining)
	}

	if output := cmd.String("output"); output != "" {
		if err := geoio.SaveLayout(output, layout); err != nil {
			return err
		}
		log.Info("Layout saved", "path", output)
	}

	if png := cmd.String("png"); png != "" {
		if err := renderLayout(png, cmd.String("background"), parcel, restricted, layout); err != nil {
			return err
		}
		log.Info("Layout rendered", "path", png)
	}

	if collector != nil {
		runtimeStats := collector.Stop()
		if err := runtimeStats.SaveToFile(cmd.String("stats")); err != nil {
			return err
		}
	}

	return nil
}

func printSummary(layout *geomodel.Layout) {
	fmt.Printf("Run %s: %s\n", layout.RunID, layout.Status)
	fmt.Printf("  buildings:  %s\n", humanize.Comma(int64(len(layout.Buildings))))
	fmt.Printf("  attempts:   %s (outside %s, restricted %s, too close %s)\n",
		humanize.Comma(int64(layout.Attempts)),
		humanize.Comma(int64(layout.Rejections.OutsideParcel)),
		humanize.Comma(int64(layout.Rejections.Restricted)),
		humanize.Comma(int64(layout.Rejections.TooClose)),
	)
	fmt.Printf("  parcel:     %s %s²\n", humanize.CommafWithDigits(layout.ParcelArea, 2), layout.WorkingCRS)
	fmt.Printf("  budget:     %s of %s left\n",
		humanize.CommafWithDigits(layout.BudgetRemaining, 2),
		humanize.CommafWithDigits(layout.Budget, 2),
	)
	fmt.Printf("  elapsed:    %s\n", layout.Elapsed)
}

// renderLayout draws in the working reference, where distances are true.
func renderLayout(path, background string, parcel geomodel.Parcel, restricted geomodel.RestrictedAreas, layout *geomodel.Layout) error {
	scene := render.Scene{Buildings: layout.Planar}

	g, err := geoproj.Reproject(parcel.Polygons, parcel.CRS, layout.WorkingCRS)
	if err != nil {
		return err
	}
	scene.Parcel = g.(orb.MultiPolygon)

	if !restricted.Empty() {
		g, err := geoproj.Reproject(restricted.MultiPolygon(), restricted.CRS, layout.WorkingCRS)
		if err != nil {
			return err
		}
		scene.Restricted = []orb.Polygon(g.(orb.MultiPolygon))
	}

	if background != "" {
		scene.Background, err = render.LoadImage(background)
		if err != nil {
			return err
		}
	}

	return render.SavePNG(path, render.Render(scene, render.OptionsDefault()))
}

func verify(ctx context.Context, cmd *cli.Command) error {
	log := slog.Default()

	working, err := geoproj.ParseCRS(cmd.String("working-crs"))
	if err != nil {
		return err
	}
	if !working.Planar() {
		return fmt.Errorf("%w: working crs %s is not planar", placement.ErrInvalidConfiguration, working)
	}

	rc := runConfig{}
	applyFlags(cmd, &rc)
	if rc.Parcel == "" {
		return errors.New("parcel is required")
	}

	parcel, err := geoio.LoadParcel(rc.Parcel, rc.parcelCRS())
	if err != nil {
		return err
	}
	restricted, err := geoio.LoadRestricted(rc.Restricted, rc.restrictedCRS())
	if err != nil {
		return err
	}
	buildings, crs, err := geoio.LoadBuildings(cmd.String("layout"), geoproj.CRS(cmd.String("layout-crs")))
	if err != nil {
		return err
	}

	g, err := geoproj.Reproject(parcel.Polygons, parcel.CRS, working)
	if err != nil {
		return err
	}
	parcelPlanar := g.(orb.MultiPolygon)

	var restrictedPlanar []orb.Polygon
	if !restricted.Empty() {
		g, err := geoproj.Reproject(restricted.MultiPolygon(), restricted.CRS, working)
		if err != nil {
			return err
		}
		restrictedPlanar = []orb.Polygon(g.(orb.MultiPolygon))
	}

	g, err = geoproj.Reproject(orb.MultiPoint(buildings), crs, working)
	if err != nil {
		return err
	}
	buildingsPlanar := []orb.Point(g.(orb.MultiPoint))

	violations, err := placement.Verify(buildingsPlanar, parcelPlanar, restrictedPlanar, cmd.Float("min-distance"))
	for _, v := range violations {
		log.Warn("Layout violation", "building", v.Index, "reason", v.String())
	}
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "Layout is valid", "buildings", len(buildings))
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	rc, err := loadRunConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	applyFlags(cmd, &rc)

	cfg, err := rc.Config.Validate()
	if err != nil {
		return err
	}

	return server.Run(ctx, cmd.String("listen"), cfg)
}
