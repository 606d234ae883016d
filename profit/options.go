package profit

import (
	"errors"

	"github.com/aouyang1/go-demandcast/venue"
)

const (
	DefaultLaborRate         = 18.0
	DefaultPrepMinutes       = 8.0
	DefaultStepMinutes       = 1.5
	DefaultBaselineSteps     = 4
	DefaultMinPrepMinutes    = 1.0
	DefaultPrepBand          = 0.3
	DefaultPerishabilityDays = 30
)

var (
	ErrNegativeLaborRate = errors.New("labor rate must be non-negative")
	ErrInvalidPrepBand   = errors.New("prep band must be in [0, 1)")
	ErrNegativeMinutes   = errors.New("prep minutes must be non-negative")
)

// DefaultCategoryPrepMinutes holds the prep minutes of a typical item per category
var DefaultCategoryPrepMinutes = map[venue.CategoryID]float64{
	"commodity": 4,
	"signature": 12,
	"beverage":  2,
	"dessert":   6,
}

// Options configures cost estimation of the profitability analyzer
type Options struct {
	// WasteFactors applies each ingredient's trim and waste factor to recipe costs and
	// requirements
	WasteFactors bool `json:"waste_factors"`

	// LaborRate is the loaded hourly labor cost used for prep time
	LaborRate float64 `json:"labor_rate"`

	// CategoryPrepMinutes defaults the prep time per category, DefaultPrepMinutes otherwise. Each
	// recipe step above or below BaselineSteps adds or removes StepMinutes.
	CategoryPrepMinutes map[venue.CategoryID]float64 `json:"category_prep_minutes"`
	DefaultPrepMinutes  float64                      `json:"default_prep_minutes"`
	StepMinutes         float64                      `json:"step_minutes"`
	BaselineSteps       int                          `json:"baseline_steps"`
	MinPrepMinutes      float64                      `json:"min_prep_minutes"`

	// PrepBand is the relative half width of the labor cost band of estimated prep times
	PrepBand float64 `json:"prep_band"`

	// PerishabilityDays replaces an unknown ingredient shelf life when ranking order priority
	PerishabilityDays int `json:"perishability_days"`
}

// NewDefaultOptions returns the default profitability options
func NewDefaultOptions() *Options {
	prep := make(map[venue.CategoryID]float64, len(DefaultCategoryPrepMinutes))
	for k, v := range DefaultCategoryPrepMinutes {
		prep[k] = v
	}
	return &Options{
		WasteFactors:        true,
		LaborRate:           DefaultLaborRate,
		CategoryPrepMinutes: prep,
		DefaultPrepMinutes:  DefaultPrepMinutes,
		StepMinutes:         DefaultStepMinutes,
		BaselineSteps:       DefaultBaselineSteps,
		MinPrepMinutes:      DefaultMinPrepMinutes,
		PrepBand:            DefaultPrepBand,
		PerishabilityDays:   DefaultPerishabilityDays,
	}
}

// Validate runs basic validation on profitability options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.LaborRate < 0 {
		return nil, ErrNegativeLaborRate
	}
	if o.PrepBand < 0 || o.PrepBand >= 1 {
		return nil, ErrInvalidPrepBand
	}
	if o.DefaultPrepMinutes < 0 || o.StepMinutes < 0 || o.MinPrepMinutes < 0 {
		return nil, ErrNegativeMinutes
	}
	for _, m := range o.CategoryPrepMinutes {
		if m < 0 {
			return nil, ErrNegativeMinutes
		}
	}
	if o.PerishabilityDays <= 0 {
		o.PerishabilityDays = DefaultPerishabilityDays
	}
	return o, nil
}

// PrepMinutes estimates the prep time of an item from its category and recipe step count
func (o *Options) PrepMinutes(category venue.CategoryID, steps int) float64 {
	base, exists := o.CategoryPrepMinutes[category]
	if !exists {
		base = o.DefaultPrepMinutes
	}
	minutes := base
	if steps > 0 {
		minutes += o.StepMinutes * float64(steps-o.BaselineSteps)
	}
	if minutes < o.MinPrepMinutes {
		minutes = o.MinPrepMinutes
	}
	return minutes
}
