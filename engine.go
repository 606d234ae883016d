// Package demandcast runs the per tenant forecasting and decision pipeline: normalized demand is
// forecast per item, and the forecasts drive the promotion, labor, profitability and ordering
// decisions of the venue.
package demandcast

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aouyang1/go-demandcast/elasticity"
	"github.com/aouyang1/go-demandcast/feature"
	"github.com/aouyang1/go-demandcast/featurestore"
	"github.com/aouyang1/go-demandcast/feedback"
	"github.com/aouyang1/go-demandcast/forecast"
	"github.com/aouyang1/go-demandcast/labor"
	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/profit"
	"github.com/aouyang1/go-demandcast/promotion"
	"github.com/aouyang1/go-demandcast/timedataset"
	"github.com/aouyang1/go-demandcast/venue"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNilSnapshot = errors.New("no tenant snapshot")
	ErrNoHorizon   = errors.New("snapshot has neither horizon days nor observations to extend")
)

// Engine runs tenant pipelines. Runs of different tenants or periods proceed concurrently while
// runs of the same tenant and period are serialized, the latest generation winning.
type Engine struct {
	opt *Options

	registry  *elasticity.Registry
	feedback  *feedback.Controller
	optimizer *promotion.Optimizer
	locks     *keyedLock

	mu         sync.Mutex
	scheduler  *labor.Scheduler
	generation uint64
	latest     map[string]*Result
}

// New creates an engine with the provided options, the defaults when nil
func New(opt *Options) (*Engine, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, eris.Wrap(err, "engine: validate options")
	}
	registry, err := elasticity.NewRegistry(opt.ElasticityOptions)
	if err != nil {
		return nil, eris.Wrap(err, "engine: elasticity registry")
	}
	controller, err := feedback.New(registry, opt.FeedbackOptions)
	if err != nil {
		return nil, eris.Wrap(err, "engine: feedback controller")
	}
	optimizer, err := promotion.NewOptimizer(opt.PromotionOptions)
	if err != nil {
		return nil, eris.Wrap(err, "engine: promotion optimizer")
	}
	scheduler, err := labor.NewScheduler(opt.LaborOptions)
	if err != nil {
		return nil, eris.Wrap(err, "engine: labor scheduler")
	}
	return &Engine{
		opt:       opt,
		registry:  registry,
		feedback:  controller,
		optimizer: optimizer,
		scheduler: scheduler,
		locks:     newKeyedLock(),
		latest:    make(map[string]*Result),
	}, nil
}

func (e *Engine) Options() *Options {
	return e.opt
}

// Registry returns the per tenant elasticity estimators shared by every run
func (e *Engine) Registry() *elasticity.Registry {
	return e.registry
}

// Feedback returns the controller learning from observed outcomes
func (e *Engine) Feedback() *feedback.Controller {
	return e.feedback
}

// ObserveSchedule calibrates the covers handled per staff member from staffing outcomes. Later
// runs schedule with the calibrated value.
func (e *Engine) ObserveSchedule(outcomes []feedback.StaffingOutcome) (feedback.Calibration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	opt, cal, err := e.feedback.ObserveSchedule(e.scheduler.Options(), outcomes)
	if err != nil {
		return cal, eris.Wrap(err, "engine: observe schedule")
	}
	scheduler, err := labor.NewScheduler(opt)
	if err != nil {
		return cal, eris.Wrap(err, "engine: labor scheduler")
	}
	e.scheduler = scheduler
	e.opt.LaborOptions = opt
	return cal, nil
}

// Latest returns the result of the latest generation completed for the tenant and period
func (e *Engine) Latest(tenant venue.TenantID, period venue.Period) (*Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, exists := e.latest[runKey(tenant, period)]
	return res, exists
}

func runKey(tenant venue.TenantID, period venue.Period) string {
	return string(tenant) + "|" + period.Key()
}

func (e *Engine) nextGeneration() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	return e.generation
}

// publish keeps the result unless a later generation of the same key already completed
func (e *Engine) publish(res *Result) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := runKey(res.Tenant, res.Period)
	if cur, exists := e.latest[key]; exists && cur.Generation > res.Generation {
		return false
	}
	e.latest[key] = res
	return true
}

func (e *Engine) currentScheduler() *labor.Scheduler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler
}

// Run executes the pipeline of one tenant snapshot. Component failures that leave the rest of
// the pipeline usable are recorded as result warnings; only invalid input and context expiry fail
// the run.
func (e *Engine) Run(ctx context.Context, snap *featurestore.Snapshot) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.TenantRuns.Observe(time.Since(start).Seconds())
	}()

	if snap == nil {
		return nil, eris.Wrap(ErrNilSnapshot, "engine: run")
	}
	tenant := snap.Tenant
	if err := tenant.Validate(); err != nil {
		return nil, eris.Wrap(err, "engine: run")
	}
	priors := forecast.NewPriors(forecast.DefaultPrior())
	if snap.Priors != nil {
		if err := snap.Priors.Validate(); err != nil {
			return nil, eris.Wrapf(err, "engine: priors of %s", tenant)
		}
		priors = snap.Priors.Clone()
	}

	series, report, err := featurestore.Normalize(tenant, snap.Observations, e.opt.FeatureStoreOptions)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: normalize %s", tenant)
	}
	horizon, err := e.horizon(snap, series)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: horizon of %s", tenant)
	}
	period := horizonPeriod(horizon)

	gen := e.nextGeneration()
	unlock, err := e.locks.Lock(ctx, runKey(tenant, period))
	if err != nil {
		return nil, eris.Wrapf(err, "engine: wait for %s %s", tenant, period.Key())
	}
	defer unlock()

	res := &Result{
		Tenant:        tenant,
		RunID:         uuid.NewString(),
		Generation:    gen,
		Period:        period,
		Normalization: report,
	}
	log := zap.L().With(zap.String("tenant", string(tenant)), zap.String("run_id", res.RunID))
	log.Debug("tenant run started", zap.Uint64("generation", gen), zap.String("period", period.Key()))

	priors = e.feedback.Decay(priors, period.Start)
	cal := e.opt.FeatureStoreOptions.Calendar
	if err := e.forecast(ctx, res, e.items(snap, series), featurestore.HorizonDays(horizon, cal), priors); err != nil {
		return nil, eris.Wrapf(err, "engine: forecast %s", tenant)
	}

	analyzer := e.analyzer(res, snap)
	if err := e.promote(ctx, res, snap, analyzer); err != nil {
		return nil, eris.Wrapf(err, "engine: promotions of %s", tenant)
	}
	if err := e.schedule(ctx, res, snap); err != nil {
		return nil, eris.Wrapf(err, "engine: schedule of %s", tenant)
	}
	e.profitability(res, snap, series, analyzer)
	e.orders(res, snap, analyzer)

	if !e.publish(res) {
		log.Info("tenant run superseded by a later generation", zap.Uint64("generation", gen))
	}
	log.Info("tenant run complete",
		zap.Int("items", len(res.Items)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// RunAll runs every tenant of the store with at most Concurrency tenants at once. A failing
// tenant does not stop the others; its error is joined into the returned error alongside the
// results of the tenants that completed.
func (e *Engine) RunAll(ctx context.Context, store featurestore.Store) (map[venue.TenantID]*Result, error) {
	tenants, err := store.Tenants(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: list tenants")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opt.Concurrency)

	var mu sync.Mutex
	res := make(map[venue.TenantID]*Result, len(tenants))
	var errs []error
	for _, tenant := range tenants {
		g.Go(func() error {
			r, err := e.runTenant(gctx, store, tenant)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				zap.L().Error("tenant run failed", zap.String("tenant", string(tenant)), zap.Error(err))
				errs = append(errs, err)
				return nil
			}
			res[tenant] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, eris.Wrap(err, "engine: run all tenants")
	}
	if len(errs) > 0 {
		return res, eris.Wrap(errors.Join(errs...), "engine: run all tenants")
	}
	return res, nil
}

func (e *Engine) runTenant(ctx context.Context, store featurestore.Store, tenant venue.TenantID) (*Result, error) {
	snap, err := store.Snapshot(ctx, tenant)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: snapshot of %s", tenant)
	}
	return e.Run(ctx, snap)
}

// horizon returns the snapshot horizon days, or HorizonDays days following the last observed day
func (e *Engine) horizon(snap *featurestore.Snapshot, series []featurestore.Series) ([]featurestore.DayContext, error) {
	if len(snap.Horizon) > 0 {
		return snap.Horizon, nil
	}
	var last time.Time
	for _, s := range series {
		if n := len(s.Days); n > 0 && s.Days[n-1].Date.After(last) {
			last = s.Days[n-1].Date
		}
	}
	if last.IsZero() {
		return nil, ErrNoHorizon
	}
	days := timedataset.Days{venue.Day(last)}.Horizon(e.opt.HorizonDays)
	res := make([]featurestore.DayContext, 0, len(days))
	for _, day := range days {
		res = append(res, featurestore.DayContext{Date: day})
	}
	return res, nil
}

// horizonPeriod is the half open period covering every horizon day
func horizonPeriod(horizon []featurestore.DayContext) venue.Period {
	first, last := venue.Day(horizon[0].Date), venue.Day(horizon[0].Date)
	for _, d := range horizon[1:] {
		day := venue.Day(d.Date)
		if day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}
	return venue.Period{Start: first, End: last.AddDate(0, 0, 1)}
}

type itemRef struct {
	id       venue.ItemID
	category venue.CategoryID
	series   *featurestore.Series
}

// items returns every item with history, on the menu or up for promotion, sorted by id. Items
// without history are forecast from their category prior.
func (e *Engine) items(snap *featurestore.Snapshot, series []featurestore.Series) []itemRef {
	refs := make(map[venue.ItemID]*itemRef)
	add := func(id venue.ItemID, category venue.CategoryID) *itemRef {
		ref, exists := refs[id]
		if !exists {
			ref = &itemRef{id: id}
			refs[id] = ref
		}
		if ref.category == "" {
			ref.category = category
		}
		return ref
	}
	for i := range series {
		add(series[i].Item, series[i].Category).series = &series[i]
	}
	for _, it := range snap.Catalog.Items {
		add(it.ID, it.Category)
	}
	for _, it := range snap.Promotions {
		add(it.ID, it.Category)
	}

	res := make([]itemRef, 0, len(refs))
	for _, ref := range refs {
		res = append(res, *ref)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].id < res[j].id })
	return res
}

func (e *Engine) forecast(ctx context.Context, res *Result, items []itemRef, horizon []feature.Day, priors forecast.Priors) error {
	cal := e.opt.FeatureStoreOptions.Calendar
	for _, it := range items {
		var history []forecast.Observation
		if it.series != nil {
			history = it.series.History(cal)
		}
		out, err := forecast.Run(ctx, forecast.Request{
			Tenant:   res.Tenant,
			Item:     it.id,
			Category: it.category,
			History:  history,
			Horizon:  horizon,
			Priors:   priors,
			RunID:    res.RunID,
		}, e.opt.ForecastOptions)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			res.warn(eris.Wrapf(err, "forecast of %s", it.id))
			continue
		}
		for _, w := range out.Warnings {
			res.warn(w)
		}
		res.Items = append(res.Items, ItemForecast{
			Item:        it.id,
			Category:    it.category,
			PriorWeight: out.PriorWeight,
			PriorSource: out.PriorSource.String(),
			PriorOnly:   out.PriorOnly,
			Pooled:      out.Pooled,
			Posterior:   out.Posterior,
			Scores:      out.Scores,
			Forecasts:   out.Forecasts,
			Model:       out.Model,
			History:     history,
		})
	}
	return nil
}

// analyzer builds the profitability analyzer of the tenant menu. Ingredients missing from the
// catalog are costed from the inventory lots.
func (e *Engine) analyzer(res *Result, snap *featurestore.Snapshot) *profit.Analyzer {
	if len(snap.Catalog.Items) == 0 {
		return nil
	}
	catalog := snap.Catalog
	known := make(map[profit.IngredientID]struct{}, len(catalog.Ingredients))
	catalog.Ingredients = append([]profit.Ingredient(nil), catalog.Ingredients...)
	for _, ing := range catalog.Ingredients {
		known[ing.ID] = struct{}{}
	}
	for _, ing := range featurestore.Ingredients(snap.Inventory) {
		if _, exists := known[ing.ID]; !exists {
			catalog.Ingredients = append(catalog.Ingredients, ing)
		}
	}

	a, err := profit.NewAnalyzer(res.Tenant, catalog, e.opt.ProfitOptions)
	if err != nil {
		res.warn(eris.Wrap(err, "profit analyzer"))
		return nil
	}
	return a
}

// promote optimizes the discounts of the first horizon day
func (e *Engine) promote(ctx context.Context, res *Result, snap *featurestore.Snapshot, analyzer *profit.Analyzer) error {
	if len(snap.Promotions) == 0 {
		return nil
	}
	est, err := e.registry.For(res.Tenant)
	if err != nil {
		return err
	}

	req := promotion.Request{
		Tenant:       res.Tenant,
		Date:         res.Period.Start,
		Demand:       make(map[venue.ItemID]promotion.Demand, len(snap.Promotions)),
		Elasticities: make(map[venue.ItemID]elasticity.Estimate, len(snap.Promotions)),
		Constraints:  snap.Constraints,
	}
	for _, it := range snap.Promotions {
		f, exists := res.Item(it.ID)
		if !exists || len(f.Forecasts) == 0 {
			res.warn(eris.Errorf("no forecast for promotion item %s", it.ID))
			continue
		}
		day := f.Forecasts[0]
		for _, d := range f.Forecasts {
			if venue.Day(d.Date).Equal(res.Period.Start) {
				day = d
				break
			}
		}
		if it.UnitCost == 0 && analyzer != nil {
			if cogs, _, issues := analyzer.COGS(it.ID); len(issues) == 0 {
				it.UnitCost = cogs.InexactFloat64()
			}
		}
		req.Items = append(req.Items, it)
		req.Demand[it.ID] = promotion.Demand{Quantity: day.Predicted, Confidence: day.Confidence}
		req.Elasticities[it.ID] = est.Estimate(it.ID, it.Category)
	}
	if len(req.Items) == 0 {
		return nil
	}

	out, err := e.optimizer.Optimize(ctx, req)
	if out == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		res.warn(eris.Wrap(err, "promotion solve"))
		return nil
	}
	if err != nil {
		res.warn(err)
	}
	res.Promotions = out
	return nil
}

// coverSlots converts the daily forecast units of every item into cover demand per service window.
// Item interval widths combine in quadrature as item errors are treated as independent.
func (e *Engine) coverSlots(res *Result, windows []featurestore.CoverWindow) []labor.DemandSlot {
	type dayDemand struct {
		mean, width2 float64
	}
	days := make(map[time.Time]*dayDemand)
	var order []time.Time
	for _, f := range res.Items {
		for _, d := range f.Forecasts {
			day := venue.Day(d.Date)
			dd, exists := days[day]
			if !exists {
				dd = &dayDemand{}
				days[day] = dd
				order = append(order, day)
			}
			dd.mean += d.Predicted
			dd.width2 += d.Width() * d.Width()
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	if len(windows) == 0 {
		windows = DefaultCoverWindows()
	}
	var slots []labor.DemandSlot
	for _, day := range order {
		dd := days[day]
		for _, w := range windows {
			slots = append(slots, labor.DemandSlot{
				Window: labor.Window{
					Start: day.Add(hours(w.StartHour)),
					End:   day.Add(hours(w.EndHour)),
				},
				Covers:        dd.mean / e.opt.UnitsPerCover * w.Share,
				IntervalWidth: math.Sqrt(dd.width2) / e.opt.UnitsPerCover * w.Share,
			})
		}
	}
	return slots
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// schedule solves the staff schedule of the run period against the forecast covers
func (e *Engine) schedule(ctx context.Context, res *Result, snap *featurestore.Snapshot) error {
	if len(snap.Employees) == 0 || len(snap.Shifts) == 0 {
		return nil
	}
	problem := labor.Problem{
		Tenant:       res.Tenant,
		Period:       res.Period,
		Employees:    snap.Employees,
		Shifts:       snap.Shifts,
		Availability: snap.Availability,
		Demand:       e.coverSlots(res, snap.CoverWindows),
		Locks:        snap.Locks,
		Conflicts:    snap.Conflicts,
		Previous:     snap.Previous,
	}
	sched := labor.NewSchedule(e.currentScheduler(), problem)
	sol, err := sched.Solve(ctx)
	if sol == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		res.warn(eris.Wrap(err, "labor solve"))
		return nil
	}
	if err != nil {
		res.warn(err)
	}
	res.Schedule = sol
	res.ScheduleState = sched.State()
	res.schedule = sched
	return nil
}

// salesPeriod is the snapshot sales period, or the span of the observed history
func salesPeriod(snap *featurestore.Snapshot, series []featurestore.Series) (venue.Period, bool) {
	if snap.SalesPeriod != nil {
		return *snap.SalesPeriod, true
	}
	var first, last time.Time
	for _, s := range series {
		for _, o := range s.Days {
			day := venue.Day(o.Date)
			if first.IsZero() || day.Before(first) {
				first = day
			}
			if day.After(last) {
				last = day
			}
		}
	}
	if first.IsZero() {
		return venue.Period{}, false
	}
	return venue.Period{Start: first, End: last.AddDate(0, 0, 1)}, true
}

// profitability analyzes the menu over the sales period with the observed units sold
func (e *Engine) profitability(res *Result, snap *featurestore.Snapshot, series []featurestore.Series, analyzer *profit.Analyzer) {
	if analyzer == nil {
		return
	}
	period, ok := salesPeriod(snap, series)
	if !ok {
		return
	}
	menu := make(map[venue.ItemID]struct{}, len(snap.Catalog.Items))
	for _, it := range snap.Catalog.Items {
		menu[it.ID] = struct{}{}
	}
	units := make(map[venue.ItemID]decimal.Decimal, len(menu))
	for _, s := range series {
		if _, exists := menu[s.Item]; !exists {
			continue
		}
		total := decimal.Zero
		for _, o := range s.Days {
			if period.Contains(o.Date) {
				total = total.Add(decimal.NewFromFloat(o.Quantity))
			}
		}
		units[s.Item] = total
	}

	report, err := analyzer.AnalyzeAll(profit.PeriodInput{Period: period, Units: units, Overhead: snap.Overhead})
	if err != nil {
		res.warn(eris.Wrap(err, "profitability"))
		return
	}
	for _, issue := range report.Issues {
		res.warn(issue)
	}
	res.Profitability = report
}

// orders explodes the horizon forecasts into ingredient requirements and suggests what to order
// against the usable inventory lots
func (e *Engine) orders(res *Result, snap *featurestore.Snapshot, analyzer *profit.Analyzer) {
	if analyzer == nil {
		return
	}
	totals := make(map[venue.ItemID]decimal.Decimal, len(res.Items))
	for _, f := range res.Items {
		totals[f.Item] = decimal.NewFromFloat(f.Total())
	}
	res.Requirements = analyzer.Explode(totals)
	res.Orders = profit.SuggestOrders(res.Requirements, featurestore.Lots(snap.Inventory), res.Period.Start)
}
