package demandcast

import (
	"github.com/aouyang1/go-demandcast/featurestore"
	"github.com/aouyang1/go-demandcast/forecast"
	"github.com/aouyang1/go-demandcast/labor"
	"github.com/aouyang1/go-demandcast/profit"
	"github.com/aouyang1/go-demandcast/promotion"
	"github.com/aouyang1/go-demandcast/venue"
)

// ItemForecast is the forecast of one item over the run horizon
type ItemForecast struct {
	Item        venue.ItemID              `json:"item_id"`
	Category    venue.CategoryID          `json:"category_id"`
	PriorWeight float64                   `json:"prior_weight"`
	PriorSource string                    `json:"prior_source"`
	PriorOnly   bool                      `json:"prior_only"`
	Pooled      bool                      `json:"pooled"`
	Posterior   forecast.Prior            `json:"posterior"`
	Scores      forecast.Scores           `json:"scores"`
	Forecasts   []forecast.DemandForecast `json:"forecasts"`
	Model       forecast.Model            `json:"model"`

	// History is the normalized demand the item was fit on
	History []forecast.Observation `json:"-"`
}

// Total is the predicted quantity summed over the horizon
func (f ItemForecast) Total() float64 {
	var total float64
	for _, d := range f.Forecasts {
		total += d.Predicted
	}
	return total
}

// Restore rebuilds the trained item forecast from its model, e.g. to predict days beyond the run
// horizon
func (f ItemForecast) Restore() (*forecast.Forecast, error) {
	return forecast.NewFromModel(f.Model)
}

// Result is the output of a tenant pipeline run. A result of a later generation for the same
// tenant and period supersedes it as a whole.
type Result struct {
	Tenant     venue.TenantID `json:"tenant"`
	RunID      string         `json:"run_id"`
	Generation uint64         `json:"generation"`
	Period     venue.Period   `json:"period"`

	Normalization *featurestore.Report `json:"normalization"`
	Items         []ItemForecast       `json:"items"`

	Promotions    *promotion.Result        `json:"promotions,omitempty"`
	Schedule      *labor.Solution          `json:"schedule,omitempty"`
	ScheduleState labor.State              `json:"schedule_state"`
	Profitability *profit.Report           `json:"profitability,omitempty"`
	Requirements  *profit.Explosion        `json:"requirements,omitempty"`
	Orders        []profit.OrderSuggestion `json:"orders,omitempty"`
	Warnings      []string                 `json:"warnings,omitempty"`
	Diagnostics   []error                  `json:"-"`

	schedule *labor.Schedule
}

// Item returns the forecast of an item
func (r *Result) Item(item venue.ItemID) (ItemForecast, bool) {
	if r == nil {
		return ItemForecast{}, false
	}
	for _, f := range r.Items {
		if f.Item == item {
			return f, true
		}
	}
	return ItemForecast{}, false
}

// Forecasts returns every item day forecast of the run
func (r *Result) Forecasts() []forecast.DemandForecast {
	var res []forecast.DemandForecast
	for _, f := range r.Items {
		res = append(res, f.Forecasts...)
	}
	return res
}

// ScheduleWorkflow returns the schedule state machine of the run for manager review, locking and
// publication. It is nil when the run had no staff or shifts to schedule.
func (r *Result) ScheduleWorkflow() *labor.Schedule {
	return r.schedule
}

func (r *Result) warn(err error) {
	r.Diagnostics = append(r.Diagnostics, err)
	r.Warnings = append(r.Warnings, err.Error())
}
