package forecast

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aouyang1/go-demandcast/feature"
	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/timedataset"
	"github.com/aouyang1/go-demandcast/venue"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var histEnd = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// simHistory simulates n days of demand ending the day before histEnd. Temperature cycles through
// a low discrepancy sequence in [8, 28] so it is not aligned with weekdays or seasons.
func simHistory(t *testing.T, n int, rate, tempEffect, phi float64, seed string) []Observation {
	t.Helper()

	tSeries := timedataset.GenerateT(n, 24*time.Hour, func() time.Time { return histEnd })
	temps := make([]float64, n)
	logRate := make(timedataset.Series, n)
	for i := range tSeries {
		frac := math.Mod(float64(i)*0.6180339887, 1.0)
		temps[i] = 8 + 20*frac
		logRate[i] = math.Log(rate) + tempEffect*(temps[i]-18)/10
	}
	y, err := timedataset.GenerateNegBinCounts(logRate.Exp(), phi, seed)
	require.Nil(t, err)

	history := make([]Observation, n)
	for i := range tSeries {
		history[i] = Observation{
			Day:      feature.Day{T: tSeries[i], TemperatureC: temps[i]},
			Quantity: y[i],
		}
	}
	return history
}

func horizon(n int) []feature.Day {
	days := make([]feature.Day, n)
	for i, d := range timedataset.DaysFrom(histEnd, n) {
		days[i] = feature.Day{T: d, TemperatureC: 18}
	}
	return days
}

func TestPriorWeight(t *testing.T) {
	testData := map[string]struct {
		days     int
		expected float64
	}{
		"no data":       {days: 0, expected: 1.0},
		"negative days": {days: -3, expected: 1.0},
		"nine days":     {days: 9, expected: 0.9},
		"half way":      {days: 45, expected: 0.5},
		"at minimum":    {days: 72, expected: 0.2},
		"full window":   {days: 90, expected: 0.2},
		"beyond window": {days: 400, expected: 0.2},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, td.expected, PriorWeight(td.days, nil), 1e-9)
		})
	}
}

func TestFitColdStart(t *testing.T) {
	f, err := New(nil)
	require.Nil(t, err)

	prior := Prior{MeanRate: 20, LogSD: 0.3, Dispersion: 0.2}
	require.Nil(t, f.Fit(nil, prior))

	assert.True(t, f.PriorOnly())
	assert.Equal(t, 1.0, f.PriorWeight())
	assert.Equal(t, venue.ConfidenceLow, f.Confidence())
	assert.InDelta(t, DefaultColdStartLogSD*DefaultColdStartLogSD, f.Posterior().LogSD*f.Posterior().LogSD, 1e-9)

	var insufficient *venue.InsufficientDataError
	require.Len(t, f.Warnings(), 1)
	assert.True(t, errors.As(f.Warnings()[0], &insufficient))

	preds, err := f.Predict(horizon(7))
	require.Nil(t, err)
	require.Len(t, preds, 7)
	for _, p := range preds {
		assert.InDelta(t, 20.0, p.Mean, 1e-9)
		assert.GreaterOrEqual(t, p.Low, 0.0)
		assert.Less(t, p.Low, p.Mean)
		assert.Greater(t, p.High, p.Mean)
	}
}

func TestFitStockoutOnlyHistory(t *testing.T) {
	history := simHistory(t, 20, 8, 0, 0.1, "stockout")
	for i := range history {
		history[i].Stockout = true
	}

	f, err := New(nil)
	require.Nil(t, err)
	require.Nil(t, f.Fit(history, DefaultPrior()))
	assert.True(t, f.PriorOnly())
	assert.Equal(t, 0, f.DaysOfData())
}

func TestFitCensorsStockouts(t *testing.T) {
	history := simHistory(t, 30, 8, 0, 0.1, "censor")
	history[3].Stockout = true
	history[10].Stockout = true
	history[11].Quantity = math.NaN()

	f, err := New(nil)
	require.Nil(t, err)
	require.Nil(t, f.Fit(history, DefaultPrior()))
	assert.Equal(t, 27, f.DaysOfData())
	assert.InDelta(t, 1-27.0/90.0, f.PriorWeight(), 1e-9)
	assert.Equal(t, venue.ConfidenceMedium, f.Confidence())
}

func TestFitIntervalsNarrowWithData(t *testing.T) {
	prior := Prior{MeanRate: 10, LogSD: 1.0, Dispersion: 0.5}

	widths := make(map[int]float64)
	for _, n := range []int{1, 180} {
		f, err := New(nil)
		require.Nil(t, err)
		require.Nil(t, f.Fit(simHistory(t, n, 10, 0, 0.05, "narrow"), prior))

		preds, err := f.Predict(horizon(1))
		require.Nil(t, err)
		widths[n] = preds[0].High - preds[0].Low
		assert.GreaterOrEqual(t, preds[0].Low, 0.0)
	}
	assert.Greater(t, widths[1], widths[180])
}

func TestFitRecoversLevel(t *testing.T) {
	f, err := New(nil)
	require.Nil(t, err)
	require.Nil(t, f.Fit(simHistory(t, 180, 25, 0, 0.05, "level"), DefaultPrior()))

	assert.Equal(t, venue.ConfidenceHigh, f.Confidence())
	assert.InDelta(t, 0.2, f.PriorWeight(), 1e-9)

	preds, err := f.Predict(horizon(7))
	require.Nil(t, err)
	for _, p := range preds {
		// the default prior pulls the level toward 4 with 20% weight
		assert.InDelta(t, math.Exp(0.2*math.Log(4)+0.8*math.Log(25)), p.Mean, 5.0)
	}
}

func TestFitWeatherCap(t *testing.T) {
	label := feature.NewWeather(feature.WeatherTemperature).String()

	testData := map[string]struct {
		days   int
		capped bool
	}{
		"short history is capped":            {days: 40, capped: true},
		"long significant history is opened": {days: 150, capped: false},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			f, err := New(nil)
			require.Nil(t, err)
			require.Nil(t, f.Fit(simHistory(t, td.days, 12, 0.8, 0.02, "weather"), DefaultPrior()))

			effect := f.Effects()[label]
			if td.capped {
				assert.LessOrEqual(t, math.Abs(effect), DefaultWeatherCap+1e-9)
				return
			}
			assert.Greater(t, effect, DefaultWeatherCap)
		})
	}
}

func TestFitUnregularized(t *testing.T) {
	label := feature.NewWeather(feature.WeatherTemperature).String()
	history := simHistory(t, 150, 12, 0.8, 0.02, "weather")

	opt := NewDefaultOptions()
	opt.Regularization = 0
	ols, err := New(opt)
	require.Nil(t, err)
	require.Nil(t, ols.Fit(history, DefaultPrior()))

	lasso, err := New(nil)
	require.Nil(t, err)
	require.Nil(t, lasso.Fit(history, DefaultPrior()))

	assert.False(t, ols.PriorOnly())
	assert.Empty(t, ols.Warnings())
	assert.Greater(t, ols.Effects()[label], DefaultWeatherCap)
	assert.GreaterOrEqual(t, ols.Effects()[label], lasso.Effects()[label]-1e-9)
}

func TestFitNonConvergenceFallsBackToPrior(t *testing.T) {
	opt := NewDefaultOptions()
	opt.MaxIterations = 1
	opt.MaxRetries = 1

	f, err := New(opt)
	require.Nil(t, err)

	before := testutil.ToFloat64(metrics.ForecastFallbacks.WithLabelValues("non_convergence"))
	prior := Prior{MeanRate: 6, LogSD: 0.5, Dispersion: 0.3}
	require.Nil(t, f.Fit(simHistory(t, 40, 15, 0, 0.1, "diverge"), prior))

	assert.True(t, f.PriorOnly())
	assert.Equal(t, 1.0, f.PriorWeight())
	assert.Equal(t, venue.ConfidenceLow, f.Confidence())
	require.Len(t, f.Warnings(), 1)
	assert.True(t, errors.Is(f.Warnings()[0], ErrFitFailed))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ForecastFallbacks.WithLabelValues("non_convergence")))

	preds, err := f.Predict(horizon(1))
	require.Nil(t, err)
	assert.InDelta(t, 6.0, preds[0].Mean, 1e-9)
}

func TestFitInvalidPrior(t *testing.T) {
	f, err := New(nil)
	require.Nil(t, err)
	err = f.Fit(nil, Prior{MeanRate: 0})
	assert.ErrorIs(t, err, ErrInvalidPriorRate)
}

func TestPredictUntrained(t *testing.T) {
	f, err := New(nil)
	require.Nil(t, err)
	_, err = f.Predict(horizon(1))
	assert.ErrorIs(t, err, ErrUntrainedForecast)

	var nilF *Forecast
	_, err = nilF.Predict(horizon(1))
	assert.ErrorIs(t, err, ErrUninitializedForecast)
}

func TestFitFromModel(t *testing.T) {
	f, err := New(nil)
	require.Nil(t, err)
	require.Nil(t, f.Fit(simHistory(t, 60, 9, 0.1, 0.1, "model"), DefaultPrior()))

	out, err := json.Marshal(f)
	require.Nil(t, err)

	restored := new(Forecast)
	require.Nil(t, json.Unmarshal(out, restored))

	expected, err := f.Predict(horizon(14))
	require.Nil(t, err)
	actual, err := restored.Predict(horizon(14))
	require.Nil(t, err)
	for i := range expected {
		assert.InDelta(t, expected[i].Mean, actual[i].Mean, 1e-9)
		assert.Equal(t, expected[i].Low, actual[i].Low)
		assert.Equal(t, expected[i].High, actual[i].High)
	}
	assert.Equal(t, f.Confidence(), restored.Confidence())
}

func TestModelTablePrint(t *testing.T) {
	f, err := New(nil)
	require.Nil(t, err)
	require.Nil(t, f.Fit(nil, Prior{MeanRate: 3, LogSD: 1, Dispersion: 0.4, Effects: map[string]float64{"dow_sat": 0.3}}))

	m, err := f.Model()
	require.Nil(t, err)

	var b bytes.Buffer
	require.Nil(t, m.TablePrint(&b, "", "  "))
	out := b.String()
	assert.Contains(t, out, "Model Version: nb-loglinear-v1")
	assert.Contains(t, out, "Prior Only: true")
	assert.Contains(t, out, "dow_sat")
	assert.Contains(t, out, "x1.350")
}

func TestRun(t *testing.T) {
	priors := NewPriors(DefaultPrior()).
		WithCategory("dessert", Prior{MeanRate: 12, LogSD: 0.5, Dispersion: 0.3})

	testData := map[string]struct {
		req         Request
		source      PriorSource
		pooled      bool
		priorOnly   bool
		confidence  venue.Confidence
		expectedErr error
	}{
		"new item pools with category": {
			req: Request{
				Tenant:   "venue-a",
				Item:     "tiramisu",
				Category: "dessert",
				History:  simHistory(t, 10, 14, 0, 0.1, "run"),
				Horizon:  horizon(7),
				Priors:   priors,
			},
			source:     PriorSourceCategory,
			pooled:     true,
			confidence: venue.ConfidenceLow,
		},
		"established item": {
			req: Request{
				Tenant:   "venue-a",
				Item:     "latte",
				Category: "beverage",
				History:  simHistory(t, 120, 30, 0, 0.05, "run"),
				Horizon:  horizon(7),
				Priors:   priors,
				RunID:    "fixed-run",
			},
			source:     PriorSourceDefault,
			confidence: venue.ConfidenceHigh,
		},
		"cold start": {
			req: Request{
				Tenant:   "venue-a",
				Item:     "new-cake",
				Category: "dessert",
				Horizon:  horizon(3),
				Priors:   priors,
			},
			source:     PriorSourceCategory,
			pooled:     true,
			priorOnly:  true,
			confidence: venue.ConfidenceLow,
		},
		"empty tenant": {
			req:         Request{Item: "latte", Horizon: horizon(1), Priors: priors},
			expectedErr: venue.ErrEmptyTenant,
		},
		"empty horizon": {
			req:         Request{Tenant: "venue-a", Item: "latte", Priors: priors},
			expectedErr: ErrEmptyHorizon,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res, err := Run(context.Background(), td.req, nil)
			if td.expectedErr != nil {
				assert.ErrorIs(t, err, td.expectedErr)
				return
			}
			require.Nil(t, err)

			assert.Equal(t, td.source, res.PriorSource)
			assert.Equal(t, td.pooled, res.Pooled)
			assert.Equal(t, td.priorOnly, res.PriorOnly)
			require.Len(t, res.Forecasts, len(td.req.Horizon))

			runID := res.Forecasts[0].RunID
			assert.NotEmpty(t, runID)
			if td.req.RunID != "" {
				assert.Equal(t, td.req.RunID, runID)
			}
			for _, fc := range res.Forecasts {
				assert.Equal(t, td.req.Tenant, fc.Tenant)
				assert.Equal(t, td.req.Item, fc.Item)
				assert.Equal(t, ModelVersion, fc.ModelVersion)
				assert.Equal(t, runID, fc.RunID)
				assert.Equal(t, td.confidence, fc.Confidence)
				assert.Equal(t, res.PriorWeight, fc.PriorWeight)
				assert.GreaterOrEqual(t, fc.Low, 0.0)
				assert.LessOrEqual(t, fc.Low, fc.Predicted)
				assert.GreaterOrEqual(t, fc.High, fc.Predicted)
			}

			for _, w := range res.Warnings {
				var insufficient *venue.InsufficientDataError
				if errors.As(w, &insufficient) {
					assert.Equal(t, td.req.Tenant, insufficient.Tenant)
					assert.Equal(t, td.req.Item, insufficient.Item)
				}
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Request{Tenant: "venue-a", Horizon: horizon(1), Priors: NewPriors(DefaultPrior())}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
