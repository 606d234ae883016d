package forecast

import (
	"context"
	"errors"
	"fmt"

	"github.com/aouyang1/go-demandcast/feature"
	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/venue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEmptyHorizon = errors.New("no forecast horizon days")

// Request is the input of a single item forecast run
type Request struct {
	Tenant   venue.TenantID
	Item     venue.ItemID
	Category venue.CategoryID
	History  []Observation
	Horizon  []feature.Day
	Priors   Priors

	// RunID is generated if empty
	RunID string
}

// Result is the output of a single item forecast run
type Result struct {
	Forecasts   []DemandForecast
	PriorWeight float64
	PriorSource PriorSource
	PriorOnly   bool
	Pooled      bool
	Posterior   Prior
	Warnings    []error
	Scores      Scores
	Model       Model
}

// Run fits the item model against its resolved prior and forecasts every horizon day
func Run(ctx context.Context, req Request, opt *Options) (*Result, error) {
	if err := req.Tenant.Validate(); err != nil {
		return nil, err
	}
	if len(req.Horizon) == 0 {
		return nil, ErrEmptyHorizon
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	f, err := New(opt)
	if err != nil {
		return nil, err
	}
	prior, source := req.Priors.Resolve(req.Item, req.Category)
	if err := f.Fit(req.History, prior); err != nil {
		return nil, fmt.Errorf("unable to fit item %s, %w", req.Item, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	preds, err := f.Predict(req.Horizon)
	if err != nil {
		return nil, fmt.Errorf("unable to predict item %s, %w", req.Item, err)
	}

	model, err := f.Model()
	if err != nil {
		return nil, err
	}

	conf := f.Confidence()
	res := &Result{
		Forecasts:   make([]DemandForecast, 0, len(preds)),
		PriorWeight: f.PriorWeight(),
		PriorSource: source,
		PriorOnly:   f.PriorOnly(),
		Pooled:      f.DaysOfData() < f.opt.PoolingThreshold,
		Posterior:   f.Posterior(),
		Scores:      f.Scores(),
		Model:       model,
	}
	for _, w := range f.Warnings() {
		var insufficient *venue.InsufficientDataError
		if errors.As(w, &insufficient) {
			insufficient.Tenant = req.Tenant
			insufficient.Item = req.Item
		}
		res.Warnings = append(res.Warnings, w)
	}

	for _, p := range preds {
		res.Forecasts = append(res.Forecasts, DemandForecast{
			Tenant:       req.Tenant,
			Item:         req.Item,
			Date:         p.Date,
			Predicted:    p.Mean,
			Low:          p.Low,
			High:         p.High,
			ModelVersion: ModelVersion,
			RunID:        req.RunID,
			PriorWeight:  res.PriorWeight,
			Confidence:   conf,
		})
	}
	metrics.ForecastsProduced.Add(float64(len(res.Forecasts)))

	if res.PriorOnly {
		zap.L().Warn("forecast is prior only",
			zap.String("tenant", string(req.Tenant)),
			zap.String("item", string(req.Item)),
			zap.String("prior_source", source.String()),
			zap.Errors("warnings", res.Warnings),
		)
	}
	return res, nil
}
