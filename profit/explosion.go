package profit

import (
	"sort"
	"time"

	"github.com/aouyang1/go-demandcast/venue"
	"github.com/shopspring/decimal"
)

// Requirement is the ingredient quantity needed to produce the forecast menu demand
type Requirement struct {
	Ingredient        IngredientID    `json:"ingredient_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	PerishabilityDays int             `json:"perishability_days"`

	// Priority ranks procurement, higher for perishable and expensive ingredients
	Priority float64 `json:"priority"`
}

// Explosion is the ingredient requirement of a set of menu item forecasts
type Explosion struct {
	Requirements   []Requirement   `json:"requirements"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	ItemsProcessed int             `json:"items_processed"`
	Skipped        []venue.ItemID  `json:"skipped,omitempty"`
}

// Explode converts forecast units per menu item into waste adjusted ingredient requirements. Items
// without a complete recipe are skipped and listed rather than partially counted.
func (a *Analyzer) Explode(forecasts map[venue.ItemID]decimal.Decimal) *Explosion {
	items := make([]venue.ItemID, 0, len(forecasts))
	for id := range forecasts {
		items = append(items, id)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })

	res := &Explosion{TotalCost: decimal.Zero}
	totals := make(map[IngredientID]decimal.Decimal)
	one := decimal.NewFromInt(1)
	for _, id := range items {
		qty := forecasts[id]
		if !qty.IsPositive() {
			continue
		}
		recipe, exists := a.cat.recipes[id]
		if !exists || len(recipe.Lines) == 0 || !a.complete(recipe) {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		res.ItemsProcessed++
		for _, l := range recipe.Lines {
			ing := a.cat.ingredients[l.Ingredient]
			need := l.Quantity.Mul(one.Add(a.waste(ing))).Mul(qty)
			if prev, exists := totals[ing.ID]; exists {
				need = need.Add(prev)
			}
			totals[ing.ID] = need
		}
	}

	for id, qty := range totals {
		ing := a.cat.ingredients[id]
		cost := qty.Mul(ing.UnitCost)
		perish := ing.PerishabilityDays
		if perish <= 0 {
			perish = a.opt.PerishabilityDays
		}
		res.Requirements = append(res.Requirements, Requirement{
			Ingredient:        id,
			Quantity:          qty,
			EstimatedCost:     cost,
			PerishabilityDays: perish,
			Priority:          100/float64(perish) + cost.InexactFloat64()/100,
		})
		res.TotalCost = res.TotalCost.Add(cost)
	}
	sort.Slice(res.Requirements, func(i, j int) bool {
		ri, rj := res.Requirements[i], res.Requirements[j]
		if ri.Priority != rj.Priority {
			return ri.Priority > rj.Priority
		}
		return ri.Ingredient < rj.Ingredient
	})
	return res
}

func (a *Analyzer) complete(r Recipe) bool {
	for _, l := range r.Lines {
		if _, exists := a.cat.ingredients[l.Ingredient]; !exists {
			return false
		}
	}
	return true
}

// InventoryLot is stock on hand of an ingredient. ExpiryDate is the last usable day and a zero
// value never expires.
type InventoryLot struct {
	Ingredient IngredientID    `json:"ingredient_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate time.Time       `json:"expiry_date"`
	Cost       decimal.Decimal `json:"cost"`
}

// Usable reports whether the lot can still be used on the given day
func (l InventoryLot) Usable(asOf time.Time) bool {
	return l.ExpiryDate.IsZero() || !venue.Day(l.ExpiryDate).Before(venue.Day(asOf))
}

// OrderSuggestion is the quantity of an ingredient to buy on top of usable stock
type OrderSuggestion struct {
	Ingredient    IngredientID    `json:"ingredient_id"`
	Required      decimal.Decimal `json:"required"`
	OnHand        decimal.Decimal `json:"on_hand"`
	Order         decimal.Decimal `json:"order"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Priority      float64         `json:"priority"`
}

// SuggestOrders nets the requirements against stock still usable on asOf and returns the
// ingredients to order in priority order
func SuggestOrders(e *Explosion, lots []InventoryLot, asOf time.Time) []OrderSuggestion {
	if e == nil {
		return nil
	}
	onHand := make(map[IngredientID]decimal.Decimal)
	for _, l := range lots {
		if !l.Usable(asOf) || !l.Quantity.IsPositive() {
			continue
		}
		onHand[l.Ingredient] = onHand[l.Ingredient].Add(l.Quantity)
	}

	res := make([]OrderSuggestion, 0, len(e.Requirements))
	for _, r := range e.Requirements {
		have := onHand[r.Ingredient]
		order := r.Quantity.Sub(have)
		if !order.IsPositive() {
			continue
		}
		cost := decimal.Zero
		if r.Quantity.IsPositive() {
			cost = r.EstimatedCost.Div(r.Quantity).Mul(order)
		}
		res = append(res, OrderSuggestion{
			Ingredient:    r.Ingredient,
			Required:      r.Quantity,
			OnHand:        have,
			Order:         order,
			EstimatedCost: cost,
			Priority:      r.Priority,
		})
	}
	return res
}
