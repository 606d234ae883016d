package forecast

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/aouyang1/go-demandcast/venue"
)

var (
	ErrInvalidPriorRate       = errors.New("prior mean rate must be positive and finite")
	ErrInvalidPriorLogSD      = errors.New("prior log standard deviation must be non-negative")
	ErrInvalidPriorDispersion = errors.New("prior dispersion must be non-negative")
)

// PriorSource tags which level of the prior hierarchy a resolved prior came from
type PriorSource int

const (
	PriorSourceDefault PriorSource = iota
	PriorSourceCategory
	PriorSourceItem
)

func (p PriorSource) String() string {
	switch p {
	case PriorSourceDefault:
		return "default"
	case PriorSourceCategory:
		return "category"
	case PriorSourceItem:
		return "item"
	}
	return "unknown"
}

// Prior is the shrinkage target of an item's demand model. MeanRate is the expected daily
// demand on an average weekday with no event, LogSD the uncertainty of its log, Dispersion the
// negative binomial overdispersion and Effects the log multipliers keyed by feature label.
type Prior struct {
	MeanRate   float64            `json:"mean_rate"`
	LogSD      float64            `json:"log_sd"`
	Dispersion float64            `json:"dispersion"`
	Effects    map[string]float64 `json:"effects,omitempty"`
	DaysOfData int                `json:"days_of_data"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Validate checks the prior parameters are usable by the forecast
func (p Prior) Validate() error {
	if p.MeanRate <= 0 || math.IsNaN(p.MeanRate) || math.IsInf(p.MeanRate, 0) {
		return ErrInvalidPriorRate
	}
	if p.LogSD < 0 || math.IsNaN(p.LogSD) {
		return ErrInvalidPriorLogSD
	}
	if p.Dispersion < 0 || math.IsNaN(p.Dispersion) {
		return ErrInvalidPriorDispersion
	}
	return nil
}

// Clone returns a deep copy of the prior
func (p Prior) Clone() Prior {
	p.Effects = maps.Clone(p.Effects)
	return p
}

// DefaultPrior is the global fallback when no category prior exists: a gamma(2, 0.5) rate
// with a mean of 4 units a day
func DefaultPrior() Prior {
	return Prior{
		MeanRate:   4.0,
		LogSD:      1.0,
		Dispersion: 0.5,
	}
}

// Priors is the two level prior mapping of a tenant. Item overrides take precedence over category
// defaults which take precedence over the global default. Priors are values: every mutating
// method returns a new copy and leaves the receiver untouched.
type Priors struct {
	Default  Prior                      `json:"default"`
	Category map[venue.CategoryID]Prior `json:"category"`
	Item     map[venue.ItemID]Prior     `json:"item"`
}

// NewPriors returns priors with only the global default set
func NewPriors(def Prior) Priors {
	return Priors{
		Default:  def,
		Category: make(map[venue.CategoryID]Prior),
		Item:     make(map[venue.ItemID]Prior),
	}
}

// Resolve returns the most specific prior for the item along with its source
func (p Priors) Resolve(item venue.ItemID, category venue.CategoryID) (Prior, PriorSource) {
	if ip, exists := p.Item[item]; exists {
		return ip.Clone(), PriorSourceItem
	}
	if cp, exists := p.Category[category]; exists {
		return cp.Clone(), PriorSourceCategory
	}
	return p.Default.Clone(), PriorSourceDefault
}

// Clone returns a deep copy of the priors
func (p Priors) Clone() Priors {
	res := Priors{
		Default:  p.Default.Clone(),
		Category: make(map[venue.CategoryID]Prior, len(p.Category)),
		Item:     make(map[venue.ItemID]Prior, len(p.Item)),
	}
	for k, v := range p.Category {
		res.Category[k] = v.Clone()
	}
	for k, v := range p.Item {
		res.Item[k] = v.Clone()
	}
	return res
}

// WithItem returns a copy of the priors with the item override set
func (p Priors) WithItem(item venue.ItemID, prior Prior) Priors {
	res := p.Clone()
	res.Item[item] = prior.Clone()
	return res
}

// WithCategory returns a copy of the priors with the category default set
func (p Priors) WithCategory(category venue.CategoryID, prior Prior) Priors {
	res := p.Clone()
	res.Category[category] = prior.Clone()
	return res
}

// Validate checks every prior in the mapping
func (p Priors) Validate() error {
	if err := p.Default.Validate(); err != nil {
		return fmt.Errorf("default prior, %w", err)
	}
	for k, v := range p.Category {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("category %s prior, %w", k, err)
		}
	}
	for k, v := range p.Item {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("item %s prior, %w", k, err)
		}
	}
	return nil
}

// PriorWeight is the share of the forecast driven by the prior given the days of tenant data.
// It is 1.0 with no data and decays linearly to the configured minimum.
func PriorWeight(days int, opt *Options) float64 {
	if days <= 0 {
		return 1.0
	}
	if opt == nil {
		opt = NewDefaultOptions()
	}
	return math.Max(opt.MinPriorWeight, 1-float64(days)/opt.FullWeightDays)
}
