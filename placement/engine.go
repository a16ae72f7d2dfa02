package placement

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/royalcat/autobuild/geomodel"
	"github.com/royalcat/autobuild/geoproj"
)

// Candidates between two context checks.
const cancelCheckInterval = 1024

// Engine places buildings with rejection sampling. It keeps no state
// between runs, concurrent Place calls are safe.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer
	metrics  instruments
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	metrics, err := newInstruments()
	if err != nil {
		return nil, fmt.Errorf("failed to create placement metrics: %w", err)
	}

	options := loadOptions(opts...)

	return &Engine{
		cfg:      cfg,
		logger:   options.logger.With("component", "placement"),
		observer: options.observer,
		metrics:  metrics,
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Place fills parcel with buildings. Hitting an attempt cap is not an
// error: the partial layout is returned with StatusNonConvergence.
func (e *Engine) Place(ctx context.Context, parcel geomodel.Parcel, restricted geomodel.RestrictedAreas) (*geomodel.Layout, error) {
	start := time.Now()

	if err := ValidateParcel(parcel); err != nil {
		return nil, err
	}
	if err := ValidateRestricted(restricted); err != nil {
		return nil, err
	}

	workParcel, toWork, err := e.parcelToWorking(parcel)
	if err != nil {
		return nil, err
	}
	workRestricted, err := e.restrictedToWorking(restricted)
	if err != nil {
		return nil, err
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	area := Area(workParcel)
	r := &run{
		id:       uuid.NewString(),
		cfg:      e.cfg,
		seed:     seed,
		checker:  NewChecker(workParcel, workRestricted, e.cfg.MinDistance),
		bound:    workParcel.Bound(),
		budget:   NewBudget(area, e.cfg.Density, e.cfg.MinDistance),
		observer: e.observer,
	}
	log := e.logger.With("run_id", r.id)

	log.Info("Placement started",
		"parcel_crs", toWork.From(),
		"working_crs", toWork.To(),
		"parcel_area", area,
		"budget", r.budget.Total(),
		"restricted", len(workRestricted),
		"workers", e.cfg.Workers,
		"sampler", e.cfg.Sampler,
	)

	if e.cfg.Workers > 1 {
		err = r.parallel(ctx, e.cfg.Workers)
	} else {
		err = r.serial(ctx)
	}
	if r.drawn != nil {
		log.Debug("Generators stopped", "drawn", r.drawn.Value(), "checked", r.attempts)
	}
	if err != nil {
		log.Warn("Placement aborted", "error", err, "buildings", len(r.accepted), "attempts", r.attempts)
		return nil, err
	}

	r.report(true)

	buildings := make([]orb.Point, len(r.accepted))
	for i, p := range r.accepted {
		buildings[i] = toWork.InversePoint(p)
	}

	layout := &geomodel.Layout{
		RunID:           r.id,
		Buildings:       buildings,
		CRS:             toWork.From(),
		Planar:          r.accepted,
		WorkingCRS:      toWork.To(),
		Status:          r.status,
		Attempts:        r.attempts,
		Rejections:      r.rejections,
		Density:         e.cfg.Density,
		MinDistance:     e.cfg.MinDistance,
		ParcelArea:      area,
		Budget:          r.budget.Total(),
		BudgetRemaining: r.budget.Remaining(),
		Elapsed:         time.Since(start),
	}
	e.metrics.record(ctx, layout, layout.Elapsed)

	if layout.Converged() {
		log.Info("Placement complete", "buildings", len(buildings), "attempts", r.attempts, "elapsed", layout.Elapsed)
	} else {
		log.Warn("Placement did not converge",
			"buildings", len(buildings),
			"attempts", r.attempts,
			"budget_remaining", r.budget.Remaining(),
			"outside_parcel", r.rejections.OutsideParcel,
			"restricted", r.rejections.Restricted,
			"too_close", r.rejections.TooClose,
		)
	}

	return layout, nil
}

func (e *Engine) parcelToWorking(parcel geomodel.Parcel) (orb.MultiPolygon, *geoproj.Transformer, error) {
	crs, err := geoproj.ParseCRS(parcel.CRS.String())
	if err != nil {
		return nil, nil, fmt.Errorf("parcel: %w", err)
	}
	if err := geoproj.CheckExtent(parcel.Polygons, crs); err != nil {
		return nil, nil, fmt.Errorf("parcel: %w", err)
	}
	if err := geoproj.CheckProjectable(parcel.Polygons, crs, e.cfg.WorkingCRS); err != nil {
		return nil, nil, fmt.Errorf("parcel: %w", err)
	}
	tr, err := geoproj.NewTransformer(crs, e.cfg.WorkingCRS)
	if err != nil {
		return nil, nil, fmt.Errorf("parcel: %w", err)
	}

	work := tr.Forward(parcel.Polygons).(orb.MultiPolygon)
	if Area(work) <= 0 {
		return nil, nil, fmt.Errorf("%w: parcel has no area in %s", ErrInvalidGeometry, tr.To())
	}
	return work, tr, nil
}

func (e *Engine) restrictedToWorking(restricted geomodel.RestrictedAreas) ([]orb.Polygon, error) {
	if restricted.Empty() {
		return nil, nil
	}

	crs, err := geoproj.ParseCRS(restricted.CRS.String())
	if err != nil {
		return nil, fmt.Errorf("restricted areas: %w", err)
	}
	if err := geoproj.CheckExtent(restricted.MultiPolygon(), crs); err != nil {
		return nil, fmt.Errorf("restricted areas: %w", err)
	}
	if err := geoproj.CheckProjectable(restricted.MultiPolygon(), crs, e.cfg.WorkingCRS); err != nil {
		return nil, fmt.Errorf("restricted areas: %w", err)
	}
	tr, err := geoproj.NewTransformer(crs, e.cfg.WorkingCRS)
	if err != nil {
		return nil, fmt.Errorf("restricted areas: %w", err)
	}

	return []orb.Polygon(tr.Forward(restricted.MultiPolygon()).(orb.MultiPolygon)), nil
}

// run is the state of one Place call.
type run struct {
	id       string
	cfg      Config
	seed     int64
	checker  *Checker
	bound    orb.Bound
	budget   *Budget
	observer Observer

	// candidates drawn by parallel generators
	drawn *xsync.Counter

	accepted    []orb.Point
	attempts    int
	consecutive int
	rejections  geomodel.Rejections
	status      geomodel.Status
}

func (r *run) newRand(stream int64) *rand.Rand {
	return rand.New(rand.NewSource(r.seed + stream))
}

// done reports whether the loop has to stop and sets the final status.
func (r *run) done() bool {
	if r.budget.Exhausted() {
		r.status = geomodel.StatusComplete
		return true
	}
	if (r.cfg.MaxAttempts > 0 && r.attempts >= r.cfg.MaxAttempts) ||
		(r.cfg.MaxConsecutiveRejections > 0 && r.consecutive >= r.cfg.MaxConsecutiveRejections) {
		r.status = geomodel.StatusNonConvergence
		return true
	}
	return false
}

// take counts one candidate. prefiltered is the Admissible verdict when it
// was already computed elsewhere.
func (r *run) take(p orb.Point, prefiltered Verdict) {
	r.attempts++

	v := prefiltered
	if v == Accepted && !r.checker.Spaced(p) {
		v = TooClose
	}

	switch v {
	case Accepted:
		r.accept(p)
	case OutsideParcel:
		r.rejections.OutsideParcel++
		r.consecutive++
	case Restricted:
		r.rejections.Restricted++
		r.consecutive++
	case TooClose:
		r.rejections.TooClose++
		r.consecutive++
	}
}

func (r *run) accept(p orb.Point) {
	r.accepted = append(r.accepted, p)
	r.checker.Add(p)
	r.budget.Consume()
	r.consecutive = 0

	r.report(false)
}

func (r *run) report(final bool) {
	r.observer(Progress{
		RunID:           r.id,
		Buildings:       len(r.accepted),
		Attempts:        r.attempts,
		Budget:          r.budget.Total(),
		BudgetRemaining: r.budget.Remaining(),
		Final:           final,
	})
}

func (r *run) serial(ctx context.Context) error {
	sampler := NewSampler(r.cfg.Sampler, r.bound, r.cfg.MinDistance, r.newRand(0))

	for !r.done() {
		if r.attempts%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.attempts > 0 {
				r.report(false)
			}
		}

		p := sampler.Next()
		r.take(p, r.checker.Admissible(p))
	}
	return nil
}
