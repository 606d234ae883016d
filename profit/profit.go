// Package profit computes per item true margins from recipe costs, prep labor and allocated
// overhead, classifies the menu by volume and margin, and explodes demand forecasts into
// ingredient orders.
package profit

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aouyang1/go-demandcast/venue"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownItem         = errors.New("unknown menu item")
	ErrDuplicateItem       = errors.New("duplicate menu item")
	ErrDuplicateRecipe     = errors.New("duplicate recipe")
	ErrDuplicateIngredient = errors.New("duplicate ingredient")
	ErrNegativeQuantity    = errors.New("quantities must be non-negative")
)

type IngredientID string

// Ingredient is a purchasable ingredient. UnitCost is per recipe unit and WasteFactor is the trim
// share lost in prep, e.g. 0.1 for 10%.
type Ingredient struct {
	ID                IngredientID    `json:"ingredient_id"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	WasteFactor       decimal.Decimal `json:"waste_factor"`
	PerishabilityDays int             `json:"perishability_days,omitempty"`
}

// RecipeLine is the quantity of an ingredient in one unit of a menu item
type RecipeLine struct {
	Ingredient IngredientID    `json:"ingredient_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// Recipe lists the ingredients and the number of prep steps of a menu item
type Recipe struct {
	Item  venue.ItemID `json:"item_id"`
	Lines []RecipeLine `json:"lines"`
	Steps int          `json:"steps"`
}

// MenuItem is a sellable item. PrepMinutes overrides the estimated prep time when set.
type MenuItem struct {
	ID          venue.ItemID     `json:"item_id"`
	Category    venue.CategoryID `json:"category_id"`
	Price       decimal.Decimal  `json:"price"`
	PrepMinutes *float64         `json:"prep_minutes,omitempty"`
}

// Catalog is the menu, recipe and ingredient master data of a tenant
type Catalog struct {
	Items       []MenuItem   `json:"items"`
	Recipes     []Recipe     `json:"recipes"`
	Ingredients []Ingredient `json:"ingredients"`
}

// Overhead is the fixed cost of a period to spread over the menu. Usage holds activity units per
// item, such as oven minutes, and is used for allocation only when it covers every sold item.
type Overhead struct {
	Total decimal.Decimal                  `json:"total"`
	Usage map[venue.ItemID]decimal.Decimal `json:"usage,omitempty"`
}

// PeriodInput is the sales and overhead of a tenant reporting period
type PeriodInput struct {
	Period   venue.Period                     `json:"period"`
	Units    map[venue.ItemID]decimal.Decimal `json:"units"`
	Overhead Overhead                         `json:"overhead"`
}

// Quadrant is the menu engineering bucket of an item
type Quadrant int

const (
	QuadrantUnclassified Quadrant = iota
	QuadrantStar
	QuadrantPuzzle
	QuadrantPlowHorse
	QuadrantDog
)

func (q Quadrant) String() string {
	switch q {
	case QuadrantStar:
		return "star"
	case QuadrantPuzzle:
		return "puzzle"
	case QuadrantPlowHorse:
		return "plow_horse"
	case QuadrantDog:
		return "dog"
	}
	return "unclassified"
}

func (q Quadrant) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// Classify buckets an item by whether its volume and margin reach the menu medians
func Classify(highVolume, highMargin bool) Quadrant {
	switch {
	case highVolume && highMargin:
		return QuadrantStar
	case highMargin:
		return QuadrantPuzzle
	case highVolume:
		return QuadrantPlowHorse
	}
	return QuadrantDog
}

// IngredientCost is the cost of one recipe line per unit of the item
type IngredientCost struct {
	Ingredient  IngredientID    `json:"ingredient_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	WasteFactor decimal.Decimal `json:"waste_factor"`
	Cost        decimal.Decimal `json:"cost"`
}

// Record is the derived profitability of a menu item over a period. Money fields are per unit
// sold. MarginPct is the margin as a percentage of price.
type Record struct {
	Tenant      venue.TenantID   `json:"tenant"`
	Item        venue.ItemID     `json:"item_id"`
	Category    venue.CategoryID `json:"category_id"`
	Period      venue.Period     `json:"period"`
	Price       decimal.Decimal  `json:"price"`
	COGS        decimal.Decimal  `json:"cogs"`
	LaborCost   decimal.Decimal  `json:"labor_cost_allocated"`
	LaborLow    decimal.Decimal  `json:"labor_cost_low"`
	LaborHigh   decimal.Decimal  `json:"labor_cost_high"`
	Overhead    decimal.Decimal  `json:"overhead_allocated"`
	Margin      decimal.Decimal  `json:"margin"`
	MarginPct   decimal.Decimal  `json:"margin_pct"`
	UnitsSold   decimal.Decimal  `json:"units_sold"`
	PrepMinutes float64          `json:"prep_minutes"`
	Quadrant    Quadrant         `json:"quadrant"`
	Confidence  venue.Confidence `json:"confidence"`
	Issues      []string         `json:"issues,omitempty"`
	Ingredients []IngredientCost `json:"ingredients,omitempty"`
}

// Excluded reports whether the record has data quality issues and is left out of totals
func (r Record) Excluded() bool {
	return len(r.Issues) > 0
}

// Totals sums revenue and cost over the records without data quality issues
type Totals struct {
	Revenue  decimal.Decimal `json:"revenue"`
	COGS     decimal.Decimal `json:"cogs"`
	Labor    decimal.Decimal `json:"labor"`
	Overhead decimal.Decimal `json:"overhead"`
	Margin   decimal.Decimal `json:"margin"`
}

// Report is the profitability of every menu item over a period, lowest margin first
type Report struct {
	Tenant          venue.TenantID            `json:"tenant"`
	Period          venue.Period              `json:"period"`
	Records         []Record                  `json:"records"`
	Totals          Totals                    `json:"totals"`
	Allocation      string                    `json:"overhead_allocation"`
	MedianUnits     decimal.Decimal           `json:"median_units"`
	MedianMarginPct decimal.Decimal           `json:"median_margin_pct"`
	Issues          []*venue.DataQualityError `json:"-"`
}

// Record returns the record of an item
func (r *Report) Record(item venue.ItemID) (Record, bool) {
	if r == nil {
		return Record{}, false
	}
	for _, rec := range r.Records {
		if rec.Item == item {
			return rec, true
		}
	}
	return Record{}, false
}

type catalog struct {
	items       map[venue.ItemID]MenuItem
	recipes     map[venue.ItemID]Recipe
	ingredients map[IngredientID]Ingredient
	order       []venue.ItemID
}

func newCatalog(c Catalog) (*catalog, error) {
	res := &catalog{
		items:       make(map[venue.ItemID]MenuItem, len(c.Items)),
		recipes:     make(map[venue.ItemID]Recipe, len(c.Recipes)),
		ingredients: make(map[IngredientID]Ingredient, len(c.Ingredients)),
	}
	for _, it := range c.Items {
		if _, exists := res.items[it.ID]; exists {
			return nil, fmt.Errorf("item %s, %w", it.ID, ErrDuplicateItem)
		}
		res.items[it.ID] = it
		res.order = append(res.order, it.ID)
	}
	sort.Slice(res.order, func(i, j int) bool { return res.order[i] < res.order[j] })
	for _, r := range c.Recipes {
		if _, exists := res.recipes[r.Item]; exists {
			return nil, fmt.Errorf("recipe of %s, %w", r.Item, ErrDuplicateRecipe)
		}
		for _, l := range r.Lines {
			if l.Quantity.IsNegative() {
				return nil, fmt.Errorf("recipe of %s, %w", r.Item, ErrNegativeQuantity)
			}
		}
		res.recipes[r.Item] = r
	}
	for _, ing := range c.Ingredients {
		if _, exists := res.ingredients[ing.ID]; exists {
			return nil, fmt.Errorf("ingredient %s, %w", ing.ID, ErrDuplicateIngredient)
		}
		if ing.UnitCost.IsNegative() || ing.WasteFactor.IsNegative() {
			return nil, fmt.Errorf("ingredient %s, %w", ing.ID, ErrNegativeQuantity)
		}
		res.ingredients[ing.ID] = ing
	}
	return res, nil
}
