// Package feedback closes the learning loop of the decision core. Observed sales, promotion
// lifts and staffing outcomes update the item priors, elasticity posteriors and staffing
// calibration the next run starts from.
package feedback

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aouyang1/go-demandcast/elasticity"
	"github.com/aouyang1/go-demandcast/forecast"
	"github.com/aouyang1/go-demandcast/labor"
	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/promotion"
	"github.com/aouyang1/go-demandcast/venue"
	"go.uber.org/zap"
)

var (
	ErrItemMismatch        = errors.New("forecast belongs to a different item")
	ErrNoMatchedDays       = errors.New("no observed days match the forecasts")
	ErrNegativeActual      = errors.New("observed quantities must be non-negative")
	ErrNonPositiveBaseline = errors.New("promotion baseline must be positive")
	ErrNoStaffedSlots      = errors.New("no staffed slots observed")
)

// Actual is the observed demand of an item day. Stockout days are censored and never feed back.
type Actual struct {
	Date     time.Time `json:"date"`
	Quantity float64   `json:"quantity"`
	Stockout bool      `json:"stockout"`
}

// SalesOutcome pairs the forecasts of an item with what was sold
type SalesOutcome struct {
	Tenant    venue.TenantID            `json:"tenant"`
	Item      venue.ItemID              `json:"item_id"`
	Category  venue.CategoryID          `json:"category_id"`
	Forecasts []forecast.DemandForecast `json:"forecasts"`
	Actuals   []Actual                  `json:"actuals"`
}

// SalesReport is the accuracy of the forecasts and the prior update they produced
type SalesReport struct {
	Tenant   venue.TenantID  `json:"tenant"`
	Item     venue.ItemID    `json:"item_id"`
	Days     int             `json:"days"`
	Scores   forecast.Scores `json:"scores"`
	Coverage float64         `json:"interval_coverage"`

	// Ratio is the smoothed observed over forecast demand
	Ratio  float64        `json:"ratio"`
	Before forecast.Prior `json:"before"`
	After  forecast.Prior `json:"after"`
}

// PromotionOutcome is the demand of an item on a promoted day against the baseline forecast
// without the promotion
type PromotionOutcome struct {
	Tenant   venue.TenantID    `json:"tenant"`
	Item     venue.ItemID      `json:"item_id"`
	Category venue.CategoryID  `json:"category_id"`
	Date     time.Time         `json:"date"`
	Discount float64           `json:"discount_pct"`
	Baseline float64           `json:"baseline"`
	Actual   float64           `json:"actual"`
	Source   elasticity.Source `json:"source"`
}

// OutcomeFromDecision builds the outcome of an applied promotion decision. Only exploration draws
// are tagged as exploration, every other discount is organic.
func OutcomeFromDecision(d promotion.Decision, category venue.CategoryID, baseline, actual float64) PromotionOutcome {
	source := elasticity.SourceOrganic
	if d.Source == promotion.SourceExploration {
		source = elasticity.SourceExploration
	}
	return PromotionOutcome{
		Tenant:   d.Tenant,
		Item:     d.Item,
		Category: category,
		Date:     d.Date,
		Discount: d.DiscountPct,
		Baseline: baseline,
		Actual:   actual,
		Source:   source,
	}
}

// StaffingOutcome is the covers served in a slot and the staff hours worked in it
type StaffingOutcome struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Covers     float64   `json:"covers"`
	StaffHours float64   `json:"staff_hours"`
}

// Calibration is the covers per staff update of a set of staffing outcomes
type Calibration struct {
	Slots    int     `json:"slots"`
	Observed float64 `json:"observed"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
}

// Controller applies observed outcomes to learned parameters. Priors and options are values and
// every update returns a new copy, while elasticity posteriors live in the shared registry.
type Controller struct {
	opt      *Options
	registry *elasticity.Registry
}

// New creates a controller updating the elasticity posteriors of the registry. A nil registry is
// replaced by one with default options.
func New(registry *elasticity.Registry, opt *Options) (*Controller, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry, err = elasticity.NewRegistry(nil)
		if err != nil {
			return nil, err
		}
	}
	return &Controller{opt: opt, registry: registry}, nil
}

// Registry returns the elasticity registry the controller updates
func (c *Controller) Registry() *elasticity.Registry {
	return c.registry
}

// ObserveSales scores the forecasts against actual sales and returns new priors with the item
// override moved toward the observed demand. The rate is smoothed in log space by the observed
// over forecast ratio, the dispersion toward the moment estimate of the residuals and the log
// standard deviation shrinks with the information of the observed days. The input priors are
// never modified.
func (c *Controller) ObserveSales(priors forecast.Priors, out SalesOutcome) (forecast.Priors, *SalesReport, error) {
	if err := out.Tenant.Validate(); err != nil {
		return priors, nil, err
	}
	byDay := make(map[time.Time]forecast.DemandForecast, len(out.Forecasts))
	for _, f := range out.Forecasts {
		if f.Tenant != "" && f.Tenant != out.Tenant {
			return priors, nil, fmt.Errorf("forecast tenant %s on outcome %s, %w", f.Tenant, out.Tenant, venue.ErrTenantMismatch)
		}
		if f.Item != "" && f.Item != out.Item {
			return priors, nil, fmt.Errorf("forecast item %s on outcome %s, %w", f.Item, out.Item, ErrItemMismatch)
		}
		byDay[venue.Day(f.Date)] = f
	}

	var predicted, actual, low, high []float64
	var last time.Time
	for _, a := range out.Actuals {
		if a.Quantity < 0 || math.IsNaN(a.Quantity) {
			return priors, nil, fmt.Errorf("item %s on %s, %w", out.Item, a.Date.Format(time.DateOnly), ErrNegativeActual)
		}
		if a.Stockout {
			continue
		}
		f, exists := byDay[venue.Day(a.Date)]
		if !exists {
			continue
		}
		predicted = append(predicted, f.Predicted)
		actual = append(actual, a.Quantity)
		low = append(low, f.Low)
		high = append(high, f.High)
		if day := venue.Day(a.Date); day.After(last) {
			last = day
		}
	}
	if len(actual) == 0 {
		return priors, nil, fmt.Errorf("item %s, %w", out.Item, ErrNoMatchedDays)
	}

	scores, err := forecast.NewScores(predicted, actual)
	if err != nil {
		return priors, nil, err
	}
	coverage, err := forecast.Coverage(low, high, actual)
	if err != nil {
		return priors, nil, err
	}

	before, _ := priors.Resolve(out.Item, out.Category)
	after := c.updatePrior(before, predicted, actual)
	if last.After(after.UpdatedAt) {
		after.UpdatedAt = last
	}
	if err := after.Validate(); err != nil {
		return priors, nil, fmt.Errorf("updated prior of item %s, %w", out.Item, err)
	}

	report := &SalesReport{
		Tenant:   out.Tenant,
		Item:     out.Item,
		Days:     len(actual),
		Scores:   *scores,
		Coverage: coverage,
		Ratio:    after.MeanRate / before.MeanRate,
		Before:   before,
		After:    after,
	}
	metrics.FeedbackUpdates.WithLabelValues("sales").Inc()
	zap.L().Debug("item prior updated from sales",
		zap.String("tenant", string(out.Tenant)),
		zap.String("item", string(out.Item)),
		zap.Int("days", report.Days),
		zap.Float64("mean_rate", after.MeanRate),
		zap.Float64("dispersion", after.Dispersion),
		zap.Float64("interval_coverage", coverage),
	)
	return priors.WithItem(out.Item, after), report, nil
}

func (c *Controller) updatePrior(prior forecast.Prior, predicted, actual []float64) forecast.Prior {
	res := prior.Clone()

	var sumPred, sumAct, excess, scale float64
	for i, mu := range predicted {
		sumPred += mu
		sumAct += actual[i]
		r := actual[i] - mu
		excess += r*r - mu
		scale += mu * mu
	}
	n := float64(len(actual))

	// counts of zero are common so both sides carry the same half unit offset as the fit
	ratio := (sumAct + 0.5) / (sumPred + 0.5)
	res.MeanRate = prior.MeanRate * math.Pow(ratio, c.opt.RateSmoothing)

	if scale > 0 {
		moment := math.Max(excess/scale, 0)
		phi := (1-c.opt.DispersionSmoothing)*prior.Dispersion + c.opt.DispersionSmoothing*moment
		res.Dispersion = math.Min(math.Max(phi, c.opt.MinDispersion), c.opt.MaxDispersion)
	}

	// each day adds the inverse of the negative binomial log count variance 1/mu + phi
	mean := sumPred / n
	if mean > 0 && prior.LogSD > 0 {
		info := n / (1/mean + prior.Dispersion)
		logSD := math.Sqrt(1 / (1/(prior.LogSD*prior.LogSD) + info))
		res.LogSD = math.Max(logSD, math.Min(c.opt.MinLogSD, prior.LogSD))
	}
	res.DaysOfData = prior.DaysOfData + len(actual)
	return res
}

// ObservePromotion converts the outcome into the observed lift over the baseline and applies it
// to the tenant's elasticity posterior. Exploration and organic outcomes follow the estimator's
// reconciliation policy and a *venue.RegimeChangeWarning may be returned alongside the estimate.
func (c *Controller) ObservePromotion(out PromotionOutcome) (elasticity.Estimate, error) {
	if out.Baseline <= 0 || math.IsNaN(out.Baseline) {
		return elasticity.Estimate{}, fmt.Errorf("item %s, %w", out.Item, ErrNonPositiveBaseline)
	}
	if out.Actual < 0 || math.IsNaN(out.Actual) {
		return elasticity.Estimate{}, fmt.Errorf("item %s, %w", out.Item, ErrNegativeActual)
	}
	est, err := c.registry.For(out.Tenant)
	if err != nil {
		return elasticity.Estimate{}, err
	}
	res, err := est.Update(elasticity.Observation{
		Tenant:    out.Tenant,
		Item:      out.Item,
		Category:  out.Category,
		Discount:  out.Discount,
		Lift:      out.Actual / out.Baseline,
		Source:    out.Source,
		Timestamp: out.Date,
	})
	var warning *venue.RegimeChangeWarning
	if err == nil || errors.As(err, &warning) {
		metrics.FeedbackUpdates.WithLabelValues("promotion").Inc()
	}
	return res, err
}

// ObserveSchedule calibrates covers per staff from the covers actually served per staff hour
// and returns a copy of the options with the smoothed value. Slots without staff are ignored.
func (c *Controller) ObserveSchedule(opt *labor.Options, outcomes []StaffingOutcome) (*labor.Options, Calibration, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, Calibration{}, err
	}
	cal := Calibration{Before: opt.CoversPerStaff, After: opt.CoversPerStaff}

	var served, staffed float64
	for _, o := range outcomes {
		if o.Covers < 0 || o.StaffHours < 0 {
			return nil, cal, ErrNegativeActual
		}
		hours := o.End.Sub(o.Start).Hours()
		if hours <= 0 || o.StaffHours <= 0 {
			continue
		}
		served += o.Covers * hours
		staffed += o.StaffHours
		cal.Slots++
	}
	if cal.Slots == 0 {
		return nil, cal, ErrNoStaffedSlots
	}

	cal.Observed = served / staffed
	next := (1-c.opt.CoversSmoothing)*opt.CoversPerStaff + c.opt.CoversSmoothing*cal.Observed
	cal.After = math.Min(math.Max(next, c.opt.MinCoversPerStaff), c.opt.MaxCoversPerStaff)

	res := *opt
	res.CoversPerStaff = cal.After
	metrics.FeedbackUpdates.WithLabelValues("schedule").Inc()
	zap.L().Debug("covers per staff calibrated",
		zap.Int("slots", cal.Slots),
		zap.Float64("observed", cal.Observed),
		zap.Float64("before", cal.Before),
		zap.Float64("after", cal.After),
	)
	return &res, cal, nil
}

// Decay inflates the log standard deviation of every category and item prior by the drift
// variance accumulated since it was last updated, capped at MaxLogSD, and returns the new priors.
// Decayed priors are stamped with asOf so repeated decays compose.
func (c *Controller) Decay(priors forecast.Priors, asOf time.Time) forecast.Priors {
	res := priors.Clone()
	decayed := 0
	for k, p := range res.Category {
		if next, ok := c.decay(p, asOf); ok {
			res.Category[k] = next
			decayed++
		}
	}
	for k, p := range res.Item {
		if next, ok := c.decay(p, asOf); ok {
			res.Item[k] = next
			decayed++
		}
	}
	if decayed > 0 {
		metrics.FeedbackUpdates.WithLabelValues("decay").Add(float64(decayed))
	}
	return res
}

func (c *Controller) decay(p forecast.Prior, asOf time.Time) (forecast.Prior, bool) {
	if p.UpdatedAt.IsZero() || !asOf.After(p.UpdatedAt) {
		return p, false
	}
	days := asOf.Sub(p.UpdatedAt).Hours() / 24
	if p.LogSD < c.opt.MaxLogSD {
		p.LogSD = math.Min(math.Sqrt(p.LogSD*p.LogSD+c.opt.DriftVariance*days), c.opt.MaxLogSD)
	}
	p.UpdatedAt = asOf
	return p, true
}
