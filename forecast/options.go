package forecast

import (
	"errors"

	"github.com/aouyang1/go-demandcast/feature"
)

const (
	DefaultPoolingThreshold   = 30
	DefaultFullWeightDays     = 90.0
	DefaultMinPriorWeight     = 0.2
	DefaultWeatherCap         = 0.2
	DefaultWeatherMinDays     = 90
	DefaultWeatherTStat       = 1.96
	DefaultRegularization     = 0.05
	DefaultMaxRetries         = 2
	DefaultMaxIterations      = 1000
	DefaultRetryFactor        = 10.0
	DefaultIntervalMass       = 0.95
	DefaultColdStartLogSD     = 0.8
	DefaultMinDispersion      = 0.01
	DefaultMaxDispersion      = 5.0
	DefaultMinEffectDays      = 14
	DefaultLowConfidenceDays  = 14
	DefaultHighConfidenceDays = 90
)

var (
	ErrInvalidPriorWeight  = errors.New("minimum prior weight must be within [0, 1]")
	ErrInvalidIntervalMass = errors.New("interval mass must be within (0, 1)")
	ErrNegativeOption      = errors.New("forecast options must be non-negative")
)

// Options configures the daily count model fit and its uncertainty
type Options struct {
	FeatureOptions *feature.Options `json:"feature_options"`

	// PoolingThreshold is the number of days below which an item is considered new and relies
	// mostly on its category prior
	PoolingThreshold int `json:"pooling_threshold"`

	// FullWeightDays and MinPriorWeight define prior_weight = max(MinPriorWeight, 1 - days/FullWeightDays)
	FullWeightDays float64 `json:"full_weight_days"`
	MinPriorWeight float64 `json:"min_prior_weight"`

	// WeatherCap bounds the magnitude of every weather coefficient until WeatherMinDays of data show
	// a coefficient with a t statistic of at least WeatherTStat
	WeatherCap     float64 `json:"weather_cap"`
	WeatherMinDays int     `json:"weather_min_days"`
	WeatherTStat   float64 `json:"weather_t_stat"`

	// Regularization is the per observation L1 penalty of the relative effects fit. Zero fits least
	// squares directly unless the features are collinear or outnumber the days. Each retry after a
	// failed fit multiplies it by RetryFactor.
	Regularization float64 `json:"regularization"`
	MaxRetries     int     `json:"max_retries"`
	RetryFactor    float64 `json:"retry_factor"`
	MaxIterations  int     `json:"max_iterations"`

	IntervalMass   float64 `json:"interval_mass"`
	ColdStartLogSD float64 `json:"cold_start_log_sd"`
	MinDispersion  float64 `json:"min_dispersion"`
	MaxDispersion  float64 `json:"max_dispersion"`

	// MinEffectDays is the history needed before relative effects are fit rather than taken from the prior
	MinEffectDays int `json:"min_effect_days"`

	LowConfidenceDays  int `json:"low_confidence_days"`
	HighConfidenceDays int `json:"high_confidence_days"`
}

// NewDefaultOptions returns the default forecast options
func NewDefaultOptions() *Options {
	return &Options{
		FeatureOptions:     feature.NewDefaultOptions(),
		PoolingThreshold:   DefaultPoolingThreshold,
		FullWeightDays:     DefaultFullWeightDays,
		MinPriorWeight:     DefaultMinPriorWeight,
		WeatherCap:         DefaultWeatherCap,
		WeatherMinDays:     DefaultWeatherMinDays,
		WeatherTStat:       DefaultWeatherTStat,
		Regularization:     DefaultRegularization,
		MaxRetries:         DefaultMaxRetries,
		RetryFactor:        DefaultRetryFactor,
		MaxIterations:      DefaultMaxIterations,
		IntervalMass:       DefaultIntervalMass,
		ColdStartLogSD:     DefaultColdStartLogSD,
		MinDispersion:      DefaultMinDispersion,
		MaxDispersion:      DefaultMaxDispersion,
		MinEffectDays:      DefaultMinEffectDays,
		LowConfidenceDays:  DefaultLowConfidenceDays,
		HighConfidenceDays: DefaultHighConfidenceDays,
	}
}

// Validate runs basic validation on the forecast options, filling feature options if unset
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.MinPriorWeight < 0 || o.MinPriorWeight > 1 {
		return nil, ErrInvalidPriorWeight
	}
	if o.IntervalMass <= 0 || o.IntervalMass >= 1 {
		return nil, ErrInvalidIntervalMass
	}
	if o.PoolingThreshold < 0 || o.FullWeightDays <= 0 || o.WeatherCap < 0 || o.Regularization < 0 ||
		o.MaxRetries < 0 || o.RetryFactor < 1 || o.MaxIterations < 0 || o.ColdStartLogSD < 0 || o.MinDispersion < 0 ||
		o.MaxDispersion < o.MinDispersion {
		return nil, ErrNegativeOption
	}
	fOpt, err := o.FeatureOptions.Validate()
	if err != nil {
		return nil, err
	}
	o.FeatureOptions = fOpt
	return o, nil
}
