package profit

import (
	"fmt"
	"sort"

	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/venue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AllocationVolume   = "volume"
	AllocationActivity = "activity"
)

var (
	hundred = decimal.NewFromInt(100)
	sixty   = decimal.NewFromInt(60)
)

// Analyzer derives the profitability of a tenant's menu
type Analyzer struct {
	opt    *Options
	tenant venue.TenantID
	cat    *catalog
}

// NewAnalyzer indexes the catalog of a tenant
func NewAnalyzer(tenant venue.TenantID, c Catalog, opt *Options) (*Analyzer, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	cat, err := newCatalog(c)
	if err != nil {
		return nil, err
	}
	return &Analyzer{opt: opt, tenant: tenant, cat: cat}, nil
}

func (a *Analyzer) waste(ing Ingredient) decimal.Decimal {
	if !a.opt.WasteFactors {
		return decimal.Zero
	}
	return ing.WasteFactor
}

// COGS returns the waste adjusted recipe cost of one unit of the item and the issues preventing a
// complete cost. Missing ingredients contribute nothing rather than a guessed cost.
func (a *Analyzer) COGS(item venue.ItemID) (decimal.Decimal, []IngredientCost, []string) {
	recipe, exists := a.cat.recipes[item]
	if !exists {
		return decimal.Zero, nil, []string{"missing recipe"}
	}
	if len(recipe.Lines) == 0 {
		return decimal.Zero, nil, []string{"empty recipe"}
	}
	total := decimal.Zero
	var issues []string
	lines := make([]IngredientCost, 0, len(recipe.Lines))
	for _, l := range recipe.Lines {
		ing, exists := a.cat.ingredients[l.Ingredient]
		if !exists {
			issues = append(issues, fmt.Sprintf("missing ingredient %s", l.Ingredient))
			continue
		}
		waste := a.waste(ing)
		cost := l.Quantity.Mul(ing.UnitCost).Mul(decimal.NewFromInt(1).Add(waste))
		lines = append(lines, IngredientCost{
			Ingredient:  ing.ID,
			Quantity:    l.Quantity,
			UnitCost:    ing.UnitCost,
			WasteFactor: waste,
			Cost:        cost,
		})
		total = total.Add(cost)
	}
	return total, lines, issues
}

// Labor returns the prep minutes and labor cost of one unit of the item with its band. An override
// on the item is exact while estimates carry a band of PrepBand around the cost.
func (a *Analyzer) Labor(it MenuItem) (float64, decimal.Decimal, decimal.Decimal, decimal.Decimal, venue.Confidence) {
	rate := decimal.NewFromFloat(a.opt.LaborRate)
	if it.PrepMinutes != nil {
		cost := decimal.NewFromFloat(*it.PrepMinutes).Mul(rate).Div(sixty)
		return *it.PrepMinutes, cost, cost, cost, venue.ConfidenceHigh
	}
	steps := 0
	if recipe, exists := a.cat.recipes[it.ID]; exists {
		steps = recipe.Steps
	}
	minutes := a.opt.PrepMinutes(it.Category, steps)
	cost := decimal.NewFromFloat(minutes).Mul(rate).Div(sixty)
	band := decimal.NewFromFloat(a.opt.PrepBand)
	one := decimal.NewFromInt(1)
	return minutes, cost, cost.Mul(one.Sub(band)), cost.Mul(one.Add(band)), venue.ConfidenceMedium
}

// Analyze returns the profitability record of a single item over the period. A record built on
// incomplete data is returned along with its *venue.DataQualityError.
func (a *Analyzer) Analyze(item venue.ItemID, in PeriodInput) (Record, error) {
	if _, exists := a.cat.items[item]; !exists {
		return Record{}, fmt.Errorf("item %s, %w", item, ErrUnknownItem)
	}
	report, err := a.AnalyzeAll(in)
	if err != nil {
		return Record{}, err
	}
	rec, _ := report.Record(item)
	for _, issue := range report.Issues {
		if issue.Item == item {
			return rec, issue
		}
	}
	return rec, nil
}

// AnalyzeAll returns the profitability of every menu item over the period. Overhead is allocated
// by activity usage when it covers every sold item and by share of units sold otherwise. Items with
// data quality issues are flagged low confidence, left unclassified and excluded from totals and
// medians.
func (a *Analyzer) AnalyzeAll(in PeriodInput) (*Report, error) {
	if err := in.Period.Validate(); err != nil {
		return nil, err
	}
	for id, u := range in.Units {
		if _, exists := a.cat.items[id]; !exists {
			return nil, fmt.Errorf("units of %s, %w", id, ErrUnknownItem)
		}
		if u.IsNegative() {
			return nil, fmt.Errorf("units of %s, %w", id, ErrNegativeQuantity)
		}
	}
	if in.Overhead.Total.IsNegative() {
		return nil, ErrNegativeQuantity
	}

	report := &Report{
		Tenant:     a.tenant,
		Period:     in.Period,
		Records:    make([]Record, 0, len(a.cat.order)),
		Allocation: AllocationVolume,
	}

	totalUnits := decimal.Zero
	totalUsage := decimal.Zero
	activity := len(in.Overhead.Usage) > 0
	for _, id := range a.cat.order {
		u := in.Units[id]
		if !u.IsPositive() {
			continue
		}
		totalUnits = totalUnits.Add(u)
		usage, exists := in.Overhead.Usage[id]
		if !exists || !usage.IsPositive() {
			activity = false
		}
		totalUsage = totalUsage.Add(usage)
	}
	if activity {
		report.Allocation = AllocationActivity
	}

	for _, id := range a.cat.order {
		it := a.cat.items[id]
		units := in.Units[id]
		rec := Record{
			Tenant:    a.tenant,
			Item:      id,
			Category:  it.Category,
			Period:    in.Period,
			Price:     it.Price,
			UnitsSold: units,
			Overhead:  decimal.Zero,
		}

		cogs, lines, issues := a.COGS(id)
		rec.COGS = cogs
		rec.Ingredients = lines
		if !it.Price.IsPositive() {
			issues = append(issues, "missing price")
		}

		var conf venue.Confidence
		rec.PrepMinutes, rec.LaborCost, rec.LaborLow, rec.LaborHigh, conf = a.Labor(it)

		if units.IsPositive() {
			if activity {
				rec.Overhead = in.Overhead.Total.Mul(in.Overhead.Usage[id]).Div(totalUsage).Div(units)
			} else {
				rec.Overhead = in.Overhead.Total.Div(totalUnits)
			}
		}

		rec.Margin = it.Price.Sub(rec.COGS).Sub(rec.LaborCost).Sub(rec.Overhead)
		rec.MarginPct = decimal.Zero
		if it.Price.IsPositive() {
			rec.MarginPct = rec.Margin.Div(it.Price).Mul(hundred)
		}
		rec.Confidence = conf
		if len(issues) > 0 {
			rec.Issues = issues
			rec.Confidence = venue.ConfidenceLow
			report.Issues = append(report.Issues, &venue.DataQualityError{Tenant: a.tenant, Item: id, Issues: issues})
			metrics.DataQualityFlags.WithLabelValues("profit").Inc()
			zap.L().Warn("profitability record excluded from totals",
				zap.String("tenant", string(a.tenant)),
				zap.String("item", string(id)),
				zap.Strings("issues", issues),
			)
		}
		report.Records = append(report.Records, rec)
	}

	a.classify(report)
	sort.SliceStable(report.Records, func(i, j int) bool {
		ri, rj := report.Records[i], report.Records[j]
		if ri.Excluded() != rj.Excluded() {
			return !ri.Excluded()
		}
		if !ri.MarginPct.Equal(rj.MarginPct) {
			return ri.MarginPct.LessThan(rj.MarginPct)
		}
		return ri.Item < rj.Item
	})
	return report, nil
}

// classify fills the medians, quadrants and totals from the records without issues
func (a *Analyzer) classify(report *Report) {
	var units, margins []decimal.Decimal
	report.Totals = Totals{
		Revenue:  decimal.Zero,
		COGS:     decimal.Zero,
		Labor:    decimal.Zero,
		Overhead: decimal.Zero,
		Margin:   decimal.Zero,
	}
	for _, rec := range report.Records {
		if rec.Excluded() {
			continue
		}
		units = append(units, rec.UnitsSold)
		margins = append(margins, rec.MarginPct)

		report.Totals.Revenue = report.Totals.Revenue.Add(rec.Price.Mul(rec.UnitsSold))
		report.Totals.COGS = report.Totals.COGS.Add(rec.COGS.Mul(rec.UnitsSold))
		report.Totals.Labor = report.Totals.Labor.Add(rec.LaborCost.Mul(rec.UnitsSold))
		report.Totals.Overhead = report.Totals.Overhead.Add(rec.Overhead.Mul(rec.UnitsSold))
		report.Totals.Margin = report.Totals.Margin.Add(rec.Margin.Mul(rec.UnitsSold))
	}
	report.MedianUnits = median(units)
	report.MedianMarginPct = median(margins)

	for i, rec := range report.Records {
		if rec.Excluded() {
			continue
		}
		highVolume := rec.UnitsSold.GreaterThanOrEqual(report.MedianUnits)
		highMargin := rec.MarginPct.GreaterThanOrEqual(report.MedianMarginPct)
		report.Records[i].Quadrant = Classify(highVolume, highMargin)
	}
}

func median(x []decimal.Decimal) decimal.Decimal {
	if len(x) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(x))
	copy(sorted, x)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}
