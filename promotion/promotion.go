// Package promotion chooses per item discounts that maximize expected profit under brand, margin
// and budget constraints, reserving a share of promotions for elasticity exploration.
package promotion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aouyang1/go-demandcast/elasticity"
	"github.com/aouyang1/go-demandcast/venue"
)

var (
	ErrInvalidItem   = errors.New("item price must be positive and cost non-negative")
	ErrDuplicateItem = errors.New("duplicate item")
	ErrMissingDemand = errors.New("no demand forecast for item")
)

// DecisionSource tags how a discount was chosen
type DecisionSource int

const (
	SourceNone DecisionSource = iota
	SourceOptimized
	SourceExploration
)

func (s DecisionSource) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceOptimized:
		return "optimized"
	case SourceExploration:
		return "exploration"
	}
	return "unknown"
}

func (s DecisionSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Item is a promotion candidate. DaysToExpiry of zero marks a non perishable item.
type Item struct {
	ID           venue.ItemID     `json:"item_id"`
	Category     venue.CategoryID `json:"category_id"`
	Price        float64          `json:"price"`
	UnitCost     float64          `json:"unit_cost"`
	MaxDiscount  float64          `json:"max_discount"`
	MinMargin    float64          `json:"min_margin"`
	Stock        float64          `json:"stock"`
	SafetyStock  float64          `json:"safety_stock"`
	DaysToExpiry float64          `json:"days_to_expiry"`
}

// Urgency ranks overstocked perishables, (stock - safety) / days_to_expiry. Non perishables have
// no urgency.
func (it Item) Urgency() float64 {
	if it.DaysToExpiry <= 0 {
		return 0
	}
	return (it.Stock - it.SafetyStock) / it.DaysToExpiry
}

// DiscountCeiling is the largest discount honoring both the brand ceiling and the margin floor
// (p(1-d) - c) / (p(1-d)) >= min_margin
func (it Item) DiscountCeiling() float64 {
	ceiling := it.MaxDiscount
	if it.MinMargin < 1 {
		ceiling = math.Min(ceiling, 1-it.UnitCost/(it.Price*(1-it.MinMargin)))
	} else {
		ceiling = 0
	}
	return math.Max(ceiling, 0)
}

// Margin returns the post discount margin percentage
func (it Item) Margin(d float64) float64 {
	net := it.Price * (1 - d)
	if net <= 0 {
		return math.Inf(-1)
	}
	return (net - it.UnitCost) / net
}

func (it Item) expiry() float64 {
	if it.DaysToExpiry <= 0 {
		return math.Inf(1)
	}
	return it.DaysToExpiry
}

func (it Item) validate() error {
	if it.Price <= 0 || it.UnitCost < 0 || math.IsNaN(it.Price) || math.IsNaN(it.UnitCost) {
		return fmt.Errorf("item %s, %w", it.ID, ErrInvalidItem)
	}
	return nil
}

// Demand is the undiscounted demand forecast of an item for the promotion day
type Demand struct {
	Quantity   float64          `json:"quantity"`
	Confidence venue.Confidence `json:"confidence"`
}

// Constraints bound the promotions of a single day. Zero values mean unlimited.
type Constraints struct {
	MaxPromotions    int     `json:"max_promotions"`
	MaxDiscountSpend float64 `json:"max_discount_spend"`
}

// Request is the input of a promotion solve for one tenant day
type Request struct {
	Tenant       venue.TenantID
	Date         time.Time
	Items        []Item
	Demand       map[venue.ItemID]Demand
	Elasticities map[venue.ItemID]elasticity.Estimate

	// CrossElasticity[i][j] is the share of item i's lift taken from item j. When set for an item
	// it replaces the default same category cannibalization.
	CrossElasticity map[venue.ItemID]map[venue.ItemID]float64

	Constraints Constraints
}

// Decision is the chosen discount of an item day
type Decision struct {
	Tenant              venue.TenantID   `json:"tenant"`
	Item                venue.ItemID     `json:"item_id"`
	Date                time.Time        `json:"date"`
	DiscountPct         float64          `json:"discount_pct"`
	ExpectedProfitDelta float64          `json:"expected_profit_delta"`
	UrgencyScore        float64          `json:"urgency_score"`
	Confidence          venue.Confidence `json:"confidence"`
	Source              DecisionSource   `json:"source"`
}

// Result is the output of a promotion solve. Decisions hold every item, promoted items first in
// rank order.
type Result struct {
	Decisions         []Decision `json:"decisions"`
	Objective         float64    `json:"objective"`
	BaselineObjective float64    `json:"baseline_objective"`
	UpperBound        float64    `json:"upper_bound"`
	Gap               float64    `json:"optimality_gap"`
	Status            string     `json:"status"`
	Evaluations       int        `json:"evaluations"`
}

// Promoted returns only the decisions with a discount
func (r *Result) Promoted() []Decision {
	if r == nil {
		return nil
	}
	res := make([]Decision, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		if d.DiscountPct > 0 {
			res = append(res, d)
		}
	}
	return res
}
