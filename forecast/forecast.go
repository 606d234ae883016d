// Package forecast fits the hierarchical negative binomial daily demand model of an item and
// produces point forecasts with prediction intervals
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	mat_ "github.com/aouyang1/go-demandcast/mat"

	"github.com/aouyang1/go-demandcast/feature"
	"github.com/aouyang1/go-demandcast/linearmodel"
	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/stats"
	"github.com/aouyang1/go-demandcast/timedataset"
	"github.com/aouyang1/go-demandcast/venue"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ModelVersion identifies the model family and revision stamped on every forecast
const ModelVersion = "nb-loglinear-v1"

const (
	fitTolerance = 1e-5
	logOffset    = 0.5
)

var (
	ErrUninitializedForecast = errors.New("uninitialized forecast")
	ErrUntrainedForecast     = errors.New("forecast has not been trained yet")
	ErrFitFailed             = errors.New("relative effects fit failed")
)

// Observation is one day of item demand. Stockout days are censored and excluded from the fit.
type Observation struct {
	Day      feature.Day
	Quantity float64
	Stockout bool
}

// DemandForecast is the forecast of a single item day
type DemandForecast struct {
	Tenant       venue.TenantID   `json:"tenant"`
	Item         venue.ItemID     `json:"item_id"`
	Date         time.Time        `json:"date"`
	Predicted    float64          `json:"predicted_quantity"`
	Low          float64          `json:"interval_low"`
	High         float64          `json:"interval_high"`
	ModelVersion string           `json:"model_version"`
	RunID        string           `json:"run_id"`
	PriorWeight  float64          `json:"prior_weight"`
	Confidence   venue.Confidence `json:"confidence"`
}

// Width is the size of the prediction interval
func (d DemandForecast) Width() float64 {
	return d.High - d.Low
}

// Forecast is the demand model of a single item. The log mean of day d is
// level + sum_j effect_j * (x_j(d) - center_j) where the centers put the level at an average
// weekday with no event, base weather and no seasonal deviation.
type Forecast struct {
	opt *Options

	level      float64
	logVar     float64
	dispersion float64
	effects    map[string]float64

	daysOfData  int
	priorWeight float64
	priorOnly   bool

	trainEndTime time.Time
	scores       *Scores
	residual     []float64
	warnings     []error
	trained      bool
}

// New creates a new forecast instance with the given options. If none are provided, a default
// is used
func New(opt *Options) (*Forecast, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Forecast{opt: opt}, nil
}

// Fit blends the item history with the prior. Too little history, stockout only history or a
// failing effects fit never return an error: the forecast degrades to the prior and the cause
// is kept in Warnings. Errors are returned for malformed input only.
func (f *Forecast) Fit(history []Observation, prior Prior) error {
	if f == nil {
		return ErrUninitializedForecast
	}
	if err := prior.Validate(); err != nil {
		return fmt.Errorf("unable to fit with prior, %w", err)
	}
	f.warnings = nil

	days := make([]feature.Day, 0, len(history))
	t := make([]time.Time, 0, len(history))
	y := make([]float64, 0, len(history))
	for _, obs := range history {
		if obs.Stockout || math.IsNaN(obs.Quantity) || obs.Quantity < 0 {
			continue
		}
		days = append(days, obs.Day)
		t = append(t, obs.Day.T)
		y = append(y, obs.Quantity)
	}

	n := len(y)
	if n == 0 {
		f.fitPriorOnly(prior, &venue.InsufficientDataError{Days: 0, Required: 1}, "cold_start")
		return nil
	}
	if _, err := timedataset.NewDailyDataset(t, y); err != nil {
		return fmt.Errorf("unable to create training dataset, %w", err)
	}
	f.trainEndTime = t[len(t)-1]

	fitted := make(map[string]float64)
	if n >= f.opt.MinEffectDays {
		var err error
		fitted, err = f.fitEffects(days, y)
		if err != nil {
			f.fitPriorOnly(prior, err, "non_convergence")
			return nil
		}
	}

	w := PriorWeight(n, f.opt)
	effects := blendEffects(prior.Effects, fitted, w)

	// poisson maximum likelihood level given the blended relative effects
	set, err := feature.Generate(days, f.opt.FeatureOptions)
	if err != nil {
		return err
	}
	offsets := relativeLogMeans(set, effects)
	sumY, sumExp := 0.0, 0.0
	for i := range y {
		sumY += y[i]
		sumExp += math.Exp(offsets[i])
	}
	levelHat := math.Log(math.Max(sumY, logOffset) / sumExp)

	// pearson moment estimate of the overdispersion and the variance of the level estimate
	num, den, sumM, varTotal := 0.0, 0.0, 0.0, 0.0
	means := make([]float64, n)
	for i := range y {
		m := math.Exp(levelHat + offsets[i])
		means[i] = m
		num += (y[i]-m)*(y[i]-m) - m
		den += m * m
		sumM += m
	}
	phiHat := f.opt.MinDispersion
	if den > 0 {
		phiHat = num / den
	}
	phiHat = math.Min(math.Max(phiHat, f.opt.MinDispersion), f.opt.MaxDispersion)
	for _, m := range means {
		varTotal += m + phiHat*m*m
	}
	levelVar := varTotal / (sumM * sumM)

	f.level = w*math.Log(prior.MeanRate) + (1-w)*levelHat
	f.dispersion = w*prior.Dispersion + (1-w)*phiHat
	f.logVar = w*prior.LogSD*prior.LogSD + (1-w)*levelVar
	f.effects = effects
	f.daysOfData = n
	f.priorWeight = w
	f.priorOnly = false
	f.trained = true

	if n < f.opt.PoolingThreshold {
		f.warnings = append(f.warnings, &venue.InsufficientDataError{Days: n, Required: f.opt.PoolingThreshold})
	}

	predicted := make([]float64, n)
	for i := range y {
		predicted[i] = math.Exp(f.level + offsets[i])
	}
	scores, err := NewScores(predicted, y)
	if err != nil {
		return err
	}
	f.scores = scores
	f.residual = make([]float64, n)
	for i := range y {
		f.residual[i] = y[i] - predicted[i]
	}
	return nil
}

func (f *Forecast) fitPriorOnly(prior Prior, cause error, reason string) {
	logSD := math.Max(prior.LogSD, f.opt.ColdStartLogSD)

	f.level = math.Log(prior.MeanRate)
	f.logVar = logSD * logSD
	f.dispersion = prior.Dispersion
	f.effects = blendEffects(prior.Effects, nil, 1.0)
	f.daysOfData = 0
	f.priorWeight = 1.0
	f.priorOnly = true
	f.scores = nil
	f.residual = nil
	f.trained = true
	f.warnings = append(f.warnings, cause)

	metrics.ForecastFallbacks.WithLabelValues(reason).Inc()
	zap.L().Debug("forecast degraded to prior", zap.String("reason", reason), zap.Error(cause))
}

// fitEffects estimates relative effects as a lasso on log(y + 0.5) with centered columns,
// retrying with a stronger penalty when the fit does not converge.
func (f *Forecast) fitEffects(days []feature.Day, y []float64) (map[string]float64, error) {
	set, err := feature.Generate(days, f.opt.FeatureOptions)
	if err != nil {
		return nil, err
	}
	set.RemoveConstantFeatures()
	if set.Len() == 0 {
		return map[string]float64{}, nil
	}
	labels := set.Labels().Labels()
	x := set.Matrix(false)
	mat_.CenterCols(x)

	n := len(y)
	z := make([]float64, n)
	for i, v := range y {
		z[i] = math.Log(v + logOffset)
	}
	zMx := mat.NewDense(n, 1, z)

	iterations := f.opt.MaxIterations
	if iterations == 0 {
		iterations = DefaultMaxIterations
	}
	lambda := f.opt.Regularization * float64(n)

	var model linearmodel.Model
	if lambda == 0 && n > len(labels)+1 {
		ols, err := linearmodel.NewOLSRegression(nil)
		if err != nil {
			return nil, err
		}
		switch err := ols.Fit(x, zMx); {
		case err == nil:
			model = ols
		case errors.Is(err, linearmodel.ErrSingular):
			zap.L().Debug("collinear effects, fitting with coordinate descent", zap.Error(err))
		default:
			return nil, err
		}
	}

	var fitErr error
	for attempt := 0; model == nil && attempt <= f.opt.MaxRetries; attempt++ {
		lasso, err := linearmodel.NewLassoRegression(&linearmodel.LassoOptions{
			Lambda:       lambda,
			Iterations:   iterations,
			Tolerance:    fitTolerance,
			FitIntercept: true,
		})
		if err != nil {
			return nil, err
		}
		fitErr = lasso.Fit(x, zMx)
		if fitErr == nil {
			model = lasso
			break
		}
		if !errors.Is(fitErr, linearmodel.ErrNotConverged) && !errors.Is(fitErr, linearmodel.ErrNonFinite) {
			return nil, fitErr
		}
		zap.L().Debug("retrying effects fit with stronger regularization",
			zap.Int("attempt", attempt+1),
			zap.Float64("lambda", lambda),
			zap.Error(fitErr),
		)
		lambda = math.Max(lambda, 1e-3) * f.opt.RetryFactor
	}
	if model == nil {
		return nil, fmt.Errorf("after %d retries, %v, %w", f.opt.MaxRetries, fitErr, ErrFitFailed)
	}

	coef := model.Coef()
	f.capWeather(labels, coef, x, zMx, model, n)

	fitted := make(map[string]float64, len(labels))
	for i, l := range labels {
		fitted[l.String()] = coef[i]
	}
	return fitted, nil
}

// capWeather clamps weather coefficients to the cap unless there are enough days of data and the
// coefficient is significant
func (f *Forecast) capWeather(labels []feature.Feature, coef []float64, x *mat.Dense, z *mat.Dense, model linearmodel.Model, n int) {
	var se []float64
	if n >= f.opt.WeatherMinDays {
		pred, err := model.Predict(x)
		if err == nil {
			p := len(coef) + 1
			ss := 0.0
			for i := 0; i < n; i++ {
				r := z.At(i, 0) - pred[i]
				ss += r * r
			}
			dof := math.Max(float64(n-p), 1)
			se, err = linearmodel.StdErrors(x, ss/dof, 1e-6*float64(n))
			if err != nil {
				se = nil
			}
		}
	}

	for i, l := range labels {
		if l.Type() != feature.FeatureTypeWeather {
			continue
		}
		if se != nil && se[i] > 0 && math.Abs(coef[i]/se[i]) >= f.opt.WeatherTStat {
			continue
		}
		coef[i] = math.Min(math.Max(coef[i], -f.opt.WeatherCap), f.opt.WeatherCap)
	}
}

// blendEffects mixes prior and fitted effects with the prior weight. Effects only present in
// the prior keep the prior value.
func blendEffects(prior, fitted map[string]float64, w float64) map[string]float64 {
	res := make(map[string]float64, len(prior)+len(fitted))
	for label, p := range prior {
		res[label] = p
	}
	for label, b := range fitted {
		res[label] = w*prior[label] + (1-w)*b
	}
	return res
}

// center is the reference value of a feature at which its effect is zero
func center(f feature.Feature) float64 {
	if f.Type() == feature.FeatureTypeWeekday {
		return 1.0 / 7.0
	}
	return 0.0
}

func relativeLogMeans(set *feature.Set, effects map[string]float64) []float64 {
	res := make([]float64, set.Rows())
	for _, f := range set.Labels().Labels() {
		b, exists := effects[f.String()]
		if !exists || b == 0 {
			continue
		}
		data, _ := set.Get(f)
		c := center(f)
		for i, v := range data {
			res[i] += b * (v - c)
		}
	}
	return res
}

// Prediction is the predictive distribution summary of one day
type Prediction struct {
	Date time.Time
	Mean float64
	Low  float64
	High float64
}

// Predict returns the predictive mean and interval for each day. The predictive distribution is
// a negative binomial whose dispersion combines the item overdispersion with the log normal
// uncertainty of the level so intervals widen with both.
func (f *Forecast) Predict(days []feature.Day) ([]Prediction, error) {
	if f == nil {
		return nil, ErrUninitializedForecast
	}
	if !f.trained {
		return nil, ErrUntrainedForecast
	}

	set, err := feature.Generate(days, f.opt.FeatureOptions)
	if err != nil {
		return nil, err
	}
	offsets := relativeLogMeans(set, f.effects)
	phiEff := f.PredictiveDispersion()

	res := make([]Prediction, len(days))
	for i, d := range days {
		mean := math.Exp(f.level + offsets[i])
		nb, err := stats.NewNegBin(mean, phiEff)
		if err != nil {
			return nil, fmt.Errorf("day %s, %w", d.T.Format(time.DateOnly), err)
		}
		lo, hi, err := nb.Interval(f.opt.IntervalMass)
		if err != nil {
			return nil, err
		}
		res[i] = Prediction{Date: d.T, Mean: mean, Low: lo, High: hi}
	}
	return res, nil
}

// PredictiveDispersion is the dispersion of the predictive distribution, (1+phi)*exp(tau^2) - 1
func (f *Forecast) PredictiveDispersion() float64 {
	if f == nil {
		return 0
	}
	return (1+f.dispersion)*math.Exp(f.logVar) - 1
}

// Confidence grades the forecast by the days of data behind it
func (f *Forecast) Confidence() venue.Confidence {
	if f == nil || f.priorOnly || f.daysOfData < f.opt.LowConfidenceDays {
		return venue.ConfidenceLow
	}
	if f.daysOfData < f.opt.HighConfidenceDays {
		return venue.ConfidenceMedium
	}
	return venue.ConfidenceHigh
}

// Posterior summarizes the fit as an item level prior for the next run
func (f *Forecast) Posterior() Prior {
	if f == nil {
		return Prior{}
	}
	effects := make(map[string]float64, len(f.effects))
	for k, v := range f.effects {
		effects[k] = v
	}
	return Prior{
		MeanRate:   math.Exp(f.level),
		LogSD:      math.Sqrt(f.logVar),
		Dispersion: f.dispersion,
		Effects:    effects,
		DaysOfData: f.daysOfData,
		UpdatedAt:  f.trainEndTime,
	}
}

// PriorWeight returns the blend weight of the prior used by the fit
func (f *Forecast) PriorWeight() float64 {
	if f == nil {
		return 1.0
	}
	return f.priorWeight
}

// PriorOnly reports whether the fit fell back to the prior entirely
func (f *Forecast) PriorOnly() bool {
	return f == nil || f.priorOnly
}

// DaysOfData returns the number of usable history days in the fit
func (f *Forecast) DaysOfData() int {
	if f == nil {
		return 0
	}
	return f.daysOfData
}

// Dispersion returns the blended item overdispersion
func (f *Forecast) Dispersion() float64 {
	if f == nil {
		return 0
	}
	return f.dispersion
}

// Effects returns a copy of the blended relative effects keyed by feature label
func (f *Forecast) Effects() map[string]float64 {
	if f == nil {
		return nil
	}
	res := make(map[string]float64, len(f.effects))
	for k, v := range f.effects {
		res[k] = v
	}
	return res
}

// Warnings returns the recoverable issues encountered during the fit
func (f *Forecast) Warnings() []error {
	if f == nil {
		return nil
	}
	res := make([]error, len(f.warnings))
	copy(res, f.warnings)
	return res
}

// Scores returns the in sample fit scores. Empty for prior only fits.
func (f *Forecast) Scores() Scores {
	if f == nil || f.scores == nil {
		return Scores{}
	}
	return *f.scores
}

// Residuals returns a slice of values representing the difference between the
// training data and the fit data
func (f *Forecast) Residuals() []float64 {
	if f == nil {
		return nil
	}
	res := make([]float64, len(f.residual))
	copy(res, f.residual)
	return res
}
