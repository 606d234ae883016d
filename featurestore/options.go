package featurestore

import (
	"errors"

	"github.com/aouyang1/go-demandcast/event"
)

const (
	DefaultHighVelocity       = 3.0
	DefaultLowVelocity        = 1.0
	DefaultGapMultiplier      = 3.0
	DefaultMinActiveDays      = 7
	DefaultHighVelocityConf   = 0.85
	DefaultMediumVelocityConf = 0.65
	DefaultMinPriceDays       = 30
	DefaultBaselineTrim       = 0.1
	DefaultMinTrimmedPoints   = 10
	DefaultDiscountSigmas     = 2.0
	DefaultMinPromotionDays   = 2
	DefaultMinSDFraction      = 0.01
	DefaultSpikeTukeyFactor   = 3.0
	DefaultMinSpikeDays       = 14
)

var (
	ErrInvalidVelocity = errors.New("velocity thresholds must be positive with low below high")
	ErrInvalidTrim     = errors.New("baseline trim must be within [0, 0.5)")
	ErrNegativeSetting = errors.New("inference settings must be non-negative")
)

// Options configures the record normalization, the inference of unflagged stockouts and
// promotions and the demand spike report
type Options struct {
	// Calendar adds holidays and local events to days the records leave unflagged
	Calendar *event.Calendar `json:"-"`

	// InferStockouts flags zero sale days of selling items as censored stockout days. Items
	// selling at least HighVelocity units a day flag every zero day, items between LowVelocity
	// and HighVelocity only zero days inside a gap longer than GapMultiplier times the average
	// gap between sales. Inference needs MinActiveDays days with a sale.
	InferStockouts     bool    `json:"infer_stockouts"`
	HighVelocity       float64 `json:"high_velocity"`
	LowVelocity        float64 `json:"low_velocity"`
	GapMultiplier      float64 `json:"gap_multiplier"`
	MinActiveDays      int     `json:"min_active_days"`
	HighVelocityConf   float64 `json:"high_velocity_confidence"`
	MediumVelocityConf float64 `json:"medium_velocity_confidence"`

	// InferPromotions marks runs of at least MinPromotionDays priced days below the robust
	// baseline price by DiscountSigmas robust standard deviations as promoted. Inference needs
	// MinPriceDays priced days.
	InferPromotions  bool    `json:"infer_promotions"`
	MinPriceDays     int     `json:"min_price_days"`
	BaselineTrim     float64 `json:"baseline_trim"`
	MinTrimmedPoints int     `json:"min_trimmed_points"`
	DiscountSigmas   float64 `json:"discount_sigmas"`
	MinPromotionDays int     `json:"min_promotion_days"`
	MinSDFraction    float64 `json:"min_sd_fraction"`

	// InferSpikes reports days selling more than SpikeTukeyFactor interquartile ranges above the
	// upper quartile. Inference needs MinSpikeDays days.
	InferSpikes      bool    `json:"infer_spikes"`
	SpikeTukeyFactor float64 `json:"spike_tukey_factor"`
	MinSpikeDays     int     `json:"min_spike_days"`
}

// NewDefaultOptions returns the default normalization options with every inference enabled
func NewDefaultOptions() *Options {
	return &Options{
		InferStockouts:     true,
		HighVelocity:       DefaultHighVelocity,
		LowVelocity:        DefaultLowVelocity,
		GapMultiplier:      DefaultGapMultiplier,
		MinActiveDays:      DefaultMinActiveDays,
		HighVelocityConf:   DefaultHighVelocityConf,
		MediumVelocityConf: DefaultMediumVelocityConf,
		InferPromotions:    true,
		MinPriceDays:       DefaultMinPriceDays,
		BaselineTrim:       DefaultBaselineTrim,
		MinTrimmedPoints:   DefaultMinTrimmedPoints,
		DiscountSigmas:     DefaultDiscountSigmas,
		MinPromotionDays:   DefaultMinPromotionDays,
		MinSDFraction:      DefaultMinSDFraction,
		InferSpikes:        true,
		SpikeTukeyFactor:   DefaultSpikeTukeyFactor,
		MinSpikeDays:       DefaultMinSpikeDays,
	}
}

// Validate runs basic validation on normalization options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.LowVelocity <= 0 || o.HighVelocity < o.LowVelocity {
		return nil, ErrInvalidVelocity
	}
	if o.BaselineTrim < 0 || o.BaselineTrim >= 0.5 {
		return nil, ErrInvalidTrim
	}
	if o.GapMultiplier < 0 || o.MinActiveDays < 0 || o.MinPriceDays < 0 || o.MinTrimmedPoints < 0 ||
		o.DiscountSigmas < 0 || o.MinPromotionDays < 0 || o.MinSDFraction < 0 || o.SpikeTukeyFactor < 0 ||
		o.MinSpikeDays < 0 {
		return nil, ErrNegativeSetting
	}
	return o, nil
}
