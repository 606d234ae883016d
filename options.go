package demandcast

import (
	"errors"
	"fmt"

	"github.com/aouyang1/go-demandcast/elasticity"
	"github.com/aouyang1/go-demandcast/featurestore"
	"github.com/aouyang1/go-demandcast/feedback"
	"github.com/aouyang1/go-demandcast/forecast"
	"github.com/aouyang1/go-demandcast/labor"
	"github.com/aouyang1/go-demandcast/profit"
	"github.com/aouyang1/go-demandcast/promotion"
)

const (
	DefaultUnitsPerCover = 2.5
	DefaultHorizonDays   = 7
	DefaultConcurrency   = 4
)

var (
	ErrNonPositiveUnitsPerCover = errors.New("units per cover must be positive")
	ErrNonPositiveHorizon       = errors.New("default horizon must be at least one day")
	ErrNonPositiveConcurrency   = errors.New("concurrency must be at least one tenant")
)

// DefaultCoverWindows splits the daily covers across lunch and dinner service when the snapshot
// carries no service windows
func DefaultCoverWindows() []featurestore.CoverWindow {
	return []featurestore.CoverWindow{
		{StartHour: 11, EndHour: 15, Share: 0.4},
		{StartHour: 17, EndHour: 22, Share: 0.6},
	}
}

// Options configures every stage of a tenant pipeline run
type Options struct {
	FeatureStoreOptions *featurestore.Options `json:"feature_store_options"`
	ForecastOptions     *forecast.Options     `json:"forecast_options"`
	ElasticityOptions   *elasticity.Options   `json:"elasticity_options"`
	PromotionOptions    *promotion.Options    `json:"promotion_options"`
	LaborOptions        *labor.Options        `json:"labor_options"`
	ProfitOptions       *profit.Options       `json:"profit_options"`
	FeedbackOptions     *feedback.Options     `json:"feedback_options"`

	// UnitsPerCover converts forecast item units into guest covers for the labor demand curve
	UnitsPerCover float64 `json:"units_per_cover"`

	// HorizonDays is the number of days forecast after the last observation when a snapshot has no
	// horizon days
	HorizonDays int `json:"horizon_days"`

	// Concurrency bounds the number of tenants run at once by RunAll
	Concurrency int `json:"concurrency"`
}

// NewDefaultOptions returns the default options of every stage
func NewDefaultOptions() *Options {
	return &Options{
		FeatureStoreOptions: featurestore.NewDefaultOptions(),
		ForecastOptions:     forecast.NewDefaultOptions(),
		ElasticityOptions:   elasticity.NewDefaultOptions(),
		PromotionOptions:    promotion.NewDefaultOptions(),
		LaborOptions:        labor.NewDefaultOptions(),
		ProfitOptions:       profit.NewDefaultOptions(),
		FeedbackOptions:     feedback.NewDefaultOptions(),
		UnitsPerCover:       DefaultUnitsPerCover,
		HorizonDays:         DefaultHorizonDays,
		Concurrency:         DefaultConcurrency,
	}
}

// Validate fills unset stage options with their defaults and validates each of them. The
// promotions optimizer shares the elasticity options of the estimator registry.
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.UnitsPerCover <= 0 {
		return nil, ErrNonPositiveUnitsPerCover
	}
	if o.HorizonDays < 1 {
		return nil, ErrNonPositiveHorizon
	}
	if o.Concurrency < 1 {
		return nil, ErrNonPositiveConcurrency
	}

	var err error
	if o.FeatureStoreOptions, err = o.FeatureStoreOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature store options, %w", err)
	}
	if o.ForecastOptions, err = o.ForecastOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid forecast options, %w", err)
	}
	if o.ElasticityOptions, err = o.ElasticityOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid elasticity options, %w", err)
	}
	if o.PromotionOptions == nil {
		o.PromotionOptions = promotion.NewDefaultOptions()
	}
	o.PromotionOptions.Elasticity = o.ElasticityOptions
	if o.PromotionOptions, err = o.PromotionOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid promotion options, %w", err)
	}
	if o.LaborOptions, err = o.LaborOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid labor options, %w", err)
	}
	if o.ProfitOptions, err = o.ProfitOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profit options, %w", err)
	}
	if o.FeedbackOptions, err = o.FeedbackOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feedback options, %w", err)
	}
	return o, nil
}
