package elasticity

import (
	"errors"
	"fmt"

	"github.com/aouyang1/go-demandcast/venue"
)

const (
	DefaultExplorationRate   = 0.05
	DefaultSaturation        = 0.05
	DefaultPriorSD           = 0.5
	DefaultObservationSD     = 0.6
	DefaultMinExplorationObs = 3
	DefaultHighConfidenceObs = 10
	DefaultMinLift           = 0.8
	DefaultMaxLift           = 2.5
	DefaultOrganicWeight     = 0.25
	DefaultRegimeRatio       = 3.0
	DefaultRegimeWindow      = 5

	// DefaultCategoryElasticity is used for categories absent from the category table
	DefaultCategoryElasticity = 1.8
)

var (
	ErrInvalidExplorationRate = errors.New("exploration rate must be within [0, 1]")
	ErrEmptyExplorationTier   = errors.New("exploration tier has no discounts")
	ErrInvalidDiscount        = errors.New("discount must be within (0, 1)")
	ErrInvalidLiftBounds      = errors.New("lift bounds must satisfy 0 <= min <= 1 <= max")
	ErrNonPositiveSD          = errors.New("standard deviations must be positive")
	ErrUnknownPolicy          = errors.New("unknown reconcile policy")
)

// ReconcilePolicy controls whether organic, urgency driven promotion observations update the
// posterior.
type ReconcilePolicy int

const (
	// ReconcileExclude tracks organic observations without applying them
	ReconcileExclude ReconcilePolicy = iota

	// ReconcileWeighted applies organic observations with their likelihood precision scaled by
	// OrganicWeight
	ReconcileWeighted
)

func (r ReconcilePolicy) String() string {
	switch r {
	case ReconcileExclude:
		return "exclude"
	case ReconcileWeighted:
		return "weighted"
	}
	return "unknown"
}

func (r ReconcilePolicy) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ReconcilePolicy) UnmarshalText(text []byte) error {
	p, err := ParseReconcilePolicy(string(text))
	if err != nil {
		return err
	}
	*r = p
	return nil
}

// ParseReconcilePolicy maps a configuration string to a policy
func ParseReconcilePolicy(s string) (ReconcilePolicy, error) {
	switch s {
	case "", "exclude":
		return ReconcileExclude, nil
	case "weighted":
		return ReconcileWeighted, nil
	}
	return 0, fmt.Errorf("%q, %w", s, ErrUnknownPolicy)
}

// DefaultCategoryTable returns the category level prior means of elasticity
func DefaultCategoryTable() map[venue.CategoryID]float64 {
	return map[venue.CategoryID]float64{
		"commodity": 2.5,
		"signature": 1.2,
		"beverage":  1.8,
		"dessert":   1.5,
	}
}

// DefaultExplorationTier is the set of small discounts exploration promotions draw from
func DefaultExplorationTier() []float64 {
	return []float64{0.05, 0.06, 0.07, 0.08}
}

// Options configures the elasticity posterior, the exploration policy and the demand response
type Options struct {
	// CategoryTable holds the prior mean elasticity of each category
	CategoryTable map[venue.CategoryID]float64 `json:"category_table"`

	// PriorSD is the standard deviation of an item's elasticity around its category mean and
	// ObservationSD the noise of a single implied elasticity observation
	PriorSD       float64 `json:"prior_sd"`
	ObservationSD float64 `json:"observation_sd"`

	ExplorationRate float64   `json:"exploration_rate"`
	ExplorationTier []float64 `json:"exploration_tier"`

	// Saturation is the rate at which deeper discounts lose marginal lift
	Saturation float64 `json:"saturation"`
	MinLift    float64 `json:"min_lift"`
	MaxLift    float64 `json:"max_lift"`

	MinExplorationObs int `json:"min_exploration_obs"`
	HighConfidenceObs int `json:"high_confidence_obs"`

	Policy        ReconcilePolicy `json:"policy"`
	OrganicWeight float64         `json:"organic_weight"`

	// RegimeRatio is the ratio of observed to predicted innovation variance over the last
	// RegimeWindow observations above which a regime change is signaled
	RegimeRatio  float64 `json:"regime_ratio"`
	RegimeWindow int     `json:"regime_window"`
}

// NewDefaultOptions returns the default elasticity options
func NewDefaultOptions() *Options {
	return &Options{
		CategoryTable:     DefaultCategoryTable(),
		PriorSD:           DefaultPriorSD,
		ObservationSD:     DefaultObservationSD,
		ExplorationRate:   DefaultExplorationRate,
		ExplorationTier:   DefaultExplorationTier(),
		Saturation:        DefaultSaturation,
		MinLift:           DefaultMinLift,
		MaxLift:           DefaultMaxLift,
		MinExplorationObs: DefaultMinExplorationObs,
		HighConfidenceObs: DefaultHighConfidenceObs,
		Policy:            ReconcileExclude,
		OrganicWeight:     DefaultOrganicWeight,
		RegimeRatio:       DefaultRegimeRatio,
		RegimeWindow:      DefaultRegimeWindow,
	}
}

// Validate runs basic validation on elasticity options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.ExplorationRate < 0 || o.ExplorationRate > 1 {
		return nil, ErrInvalidExplorationRate
	}
	if len(o.ExplorationTier) == 0 {
		return nil, ErrEmptyExplorationTier
	}
	for _, d := range o.ExplorationTier {
		if d <= 0 || d >= 1 {
			return nil, fmt.Errorf("exploration tier discount %.3f, %w", d, ErrInvalidDiscount)
		}
	}
	if o.MinLift < 0 || o.MinLift > 1 || o.MaxLift < 1 {
		return nil, ErrInvalidLiftBounds
	}
	if o.PriorSD <= 0 || o.ObservationSD <= 0 {
		return nil, ErrNonPositiveSD
	}
	if o.Policy != ReconcileExclude && o.Policy != ReconcileWeighted {
		return nil, ErrUnknownPolicy
	}
	if o.CategoryTable == nil {
		o.CategoryTable = DefaultCategoryTable()
	}
	return o, nil
}

// CategoryMean returns the prior mean elasticity of the category
func (o *Options) CategoryMean(category venue.CategoryID) float64 {
	if e, exists := o.CategoryTable[category]; exists {
		return e
	}
	return DefaultCategoryElasticity
}
