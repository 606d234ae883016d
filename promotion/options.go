package promotion

import (
	"errors"
	"time"

	"github.com/aouyang1/go-demandcast/elasticity"
)

const (
	DefaultDiscountStep        = 0.05
	DefaultCannibalizationRate = 0.2
	DefaultCannibalLambda      = 1.0
	DefaultTimeBudget          = 2 * time.Second
	DefaultMaxLocalSearch      = 10000
)

var (
	ErrInvalidDiscountStep = errors.New("discount step must be within (0, 1)")
	ErrInvalidCannibalRate = errors.New("cannibalization rate must be within [0, 1]")
	ErrNegativeBudget      = errors.New("promotion budgets must be non-negative")
)

// Options configures the promotions optimizer
type Options struct {
	Elasticity *elasticity.Options `json:"elasticity"`

	// DiscountStep is the spacing of the discount grid searched for each item
	DiscountStep float64 `json:"discount_step"`

	// CannibalizationRate is the share of an item's lift taken from same category substitutes when
	// no cross elasticity is supplied, and CannibalLambda weighs the lost substitute margin
	CannibalizationRate float64 `json:"cannibalization_rate"`
	CannibalLambda      float64 `json:"cannibal_lambda"`

	// TimeBudget bounds the wall clock of a solve. The best incumbent is returned on expiry.
	TimeBudget     time.Duration `json:"time_budget"`
	MaxLocalSearch int           `json:"max_local_search"`
}

// NewDefaultOptions returns the default promotions optimizer options
func NewDefaultOptions() *Options {
	return &Options{
		Elasticity:          elasticity.NewDefaultOptions(),
		DiscountStep:        DefaultDiscountStep,
		CannibalizationRate: DefaultCannibalizationRate,
		CannibalLambda:      DefaultCannibalLambda,
		TimeBudget:          DefaultTimeBudget,
		MaxLocalSearch:      DefaultMaxLocalSearch,
	}
}

// Validate runs basic validation on the optimizer options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.DiscountStep <= 0 || o.DiscountStep >= 1 {
		return nil, ErrInvalidDiscountStep
	}
	if o.CannibalizationRate < 0 || o.CannibalizationRate > 1 {
		return nil, ErrInvalidCannibalRate
	}
	if o.CannibalLambda < 0 || o.TimeBudget < 0 || o.MaxLocalSearch < 0 {
		return nil, ErrNegativeBudget
	}
	eOpt, err := o.Elasticity.Validate()
	if err != nil {
		return nil, err
	}
	o.Elasticity = eOpt
	return o, nil
}
