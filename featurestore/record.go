// Package featurestore adapts the read only records of a venue into model ready inputs. It
// merges raw demand rows into one observation per item day, infers censored stockout days and
// unflagged price promotions, and serves tenant snapshots to the decision core.
package featurestore

import (
	"math"
	"time"

	"github.com/aouyang1/go-demandcast/event"
	"github.com/aouyang1/go-demandcast/feature"
	"github.com/aouyang1/go-demandcast/forecast"
	"github.com/aouyang1/go-demandcast/profit"
	"github.com/aouyang1/go-demandcast/timedataset"
	"github.com/aouyang1/go-demandcast/venue"
	"github.com/shopspring/decimal"
)

type Weather struct {
	TemperatureC    float64 `json:"temperature_c"`
	PrecipitationMM float64 `json:"precipitation_mm"`
}

type Calendar struct {
	Holiday bool   `json:"holiday"`
	Event   string `json:"event,omitempty"`
}

// DayContext is the weather and calendar of a day, used for horizon days with no demand yet
type DayContext struct {
	Date     time.Time `json:"date"`
	Weather  Weather   `json:"weather"`
	Calendar Calendar  `json:"calendar"`
}

// Day returns the feature day of the context with holidays and events from the calendar added
func (d DayContext) Day(cal *event.Calendar) feature.Day {
	day := venue.Day(d.Date)
	return feature.Day{
		T:               day,
		TemperatureC:    d.Weather.TemperatureC,
		PrecipitationMM: d.Weather.PrecipitationMM,
		Holiday:         d.Calendar.Holiday || cal.IsHoliday(day),
		LocalEvent:      d.Calendar.Event != "" || len(cal.LocalEvents(day)) > 0,
	}
}

// HorizonDays converts the contexts into forecast horizon days
func HorizonDays(days []DayContext, cal *event.Calendar) []feature.Day {
	res := make([]feature.Day, 0, len(days))
	for _, d := range days {
		res = append(res, d.Day(cal))
	}
	return res
}

// DemandObservation is the demand of an item on a day. Raw records may hold several rows per
// item day which Normalize merges.
type DemandObservation struct {
	Tenant   venue.TenantID   `json:"tenant"`
	Item     venue.ItemID     `json:"item_id"`
	Category venue.CategoryID `json:"category_id"`
	Date     time.Time        `json:"date"`
	Quantity float64          `json:"quantity_sold"`
	Price    float64          `json:"price"`
	Promoted bool             `json:"promoted"`
	Stockout bool             `json:"stockout"`
	Weather  Weather          `json:"weather"`
	Calendar Calendar         `json:"calendar"`
}

func (o DemandObservation) context() DayContext {
	return DayContext{Date: o.Date, Weather: o.Weather, Calendar: o.Calendar}
}

// Series is the normalized daily demand of one item, one observation per day in date order
type Series struct {
	Tenant   venue.TenantID      `json:"tenant"`
	Item     venue.ItemID        `json:"item_id"`
	Category venue.CategoryID    `json:"category_id"`
	Days     []DemandObservation `json:"days"`
}

// History returns the forecast history of the series. Stockout days are kept as censored days.
func (s Series) History(cal *event.Calendar) []forecast.Observation {
	res := make([]forecast.Observation, 0, len(s.Days))
	for _, o := range s.Days {
		day := o.context().Day(cal)
		day.Promoted = o.Promoted
		res = append(res, forecast.Observation{Day: day, Quantity: o.Quantity, Stockout: o.Stockout})
	}
	return res
}

// Dataset returns the daily quantities of the series with stockout days as NaN
func (s Series) Dataset() (*timedataset.TimeDataset, error) {
	t := make([]time.Time, 0, len(s.Days))
	y := make([]float64, 0, len(s.Days))
	for _, o := range s.Days {
		t = append(t, venue.Day(o.Date))
		if o.Stockout {
			y = append(y, math.NaN())
			continue
		}
		y = append(y, o.Quantity)
	}
	return timedataset.NewDailyDataset(t, y)
}

// Velocity returns the units sold per calendar day over the span of the series and the number
// of days with a sale
func (s Series) Velocity() (float64, int) {
	if len(s.Days) == 0 {
		return 0, 0
	}
	total := 0.0
	active := 0
	for _, o := range s.Days {
		if o.Quantity > 0 {
			total += o.Quantity
			active++
		}
	}
	return total / float64(s.span()), active
}

func (s Series) span() int {
	if len(s.Days) == 0 {
		return 0
	}
	days := s.dates()
	return int(days.Last().Sub(days.First()).Hours()/24) + 1
}

func (s Series) dates() timedataset.Days {
	res := make(timedataset.Days, 0, len(s.Days))
	for _, o := range s.Days {
		res = append(res, venue.Day(o.Date))
	}
	return res
}

// InventoryRecord is a lot of an ingredient on hand. Cost is the cost of the whole lot.
type InventoryRecord struct {
	Ingredient  profit.IngredientID `json:"ingredient_id"`
	Quantity    decimal.Decimal     `json:"quantity"`
	ExpiryDate  time.Time           `json:"expiry_date"`
	Cost        decimal.Decimal     `json:"cost"`
	WasteFactor decimal.Decimal     `json:"waste_factor"`
}

// Lots converts the inventory records into profit inventory lots
func Lots(records []InventoryRecord) []profit.InventoryLot {
	res := make([]profit.InventoryLot, 0, len(records))
	for _, r := range records {
		res = append(res, profit.InventoryLot{
			Ingredient: r.Ingredient,
			Quantity:   r.Quantity,
			ExpiryDate: r.ExpiryDate,
			Cost:       r.Cost,
		})
	}
	return res
}

// Ingredients derives an ingredient per inventory ingredient with the quantity weighted unit cost
// of its lots and the waste factor of the last lot listed. Ingredients without positive stock are
// left out.
func Ingredients(records []InventoryRecord) []profit.Ingredient {
	type totals struct {
		qty, cost, waste decimal.Decimal
	}
	var order []profit.IngredientID
	byID := make(map[profit.IngredientID]*totals)
	for _, r := range records {
		if !r.Quantity.IsPositive() {
			continue
		}
		t, exists := byID[r.Ingredient]
		if !exists {
			t = &totals{qty: decimal.Zero, cost: decimal.Zero}
			byID[r.Ingredient] = t
			order = append(order, r.Ingredient)
		}
		t.qty = t.qty.Add(r.Quantity)
		t.cost = t.cost.Add(r.Cost)
		t.waste = r.WasteFactor
	}
	res := make([]profit.Ingredient, 0, len(order))
	for _, id := range order {
		t := byID[id]
		res = append(res, profit.Ingredient{
			ID:          id,
			UnitCost:    t.cost.Div(t.qty),
			WasteFactor: t.waste,
		})
	}
	return res
}
