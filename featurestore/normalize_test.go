package featurestore

import (
	"math"
	"testing"
	"time"

	"github.com/aouyang1/go-demandcast/event"
	"github.com/aouyang1/go-demandcast/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func obs(item venue.ItemID, day int, qty, price float64) DemandObservation {
	return DemandObservation{
		Tenant:   "venue-a",
		Item:     item,
		Category: "commodity",
		Date:     day0.AddDate(0, 0, day),
		Quantity: qty,
		Price:    price,
	}
}

func noInference() *Options {
	opt := NewDefaultOptions()
	opt.InferStockouts = false
	opt.InferPromotions = false
	return opt
}

func TestNormalize(t *testing.T) {
	lunch := obs("fries", 1, 2, 10)
	lunch.Date = lunch.Date.Add(12 * time.Hour)
	dinner := obs("fries", 1, 6, 12)
	dinner.Date = dinner.Date.Add(19 * time.Hour)
	dinner.Promoted = true
	empty := obs("burger", 0, 0, 0)
	priced := obs("burger", 0, 0, 9)

	raw := []DemandObservation{
		obs("fries", 2, 3, 10),
		lunch,
		obs("burger", 1, 4, 9),
		dinner,
		obs("fries", 0, -1, 10),
		obs("", 0, 1, 10),
		empty,
		priced,
	}

	series, report, err := Normalize("venue-a", raw, noInference())
	require.Nil(t, err)

	assert.Equal(t, 8, report.Rows)
	assert.Equal(t, 2, report.Merged)
	assert.Equal(t, 2, report.Dropped)
	assert.Len(t, report.Issues, 2)
	assert.Empty(t, report.Gaps)

	require.Len(t, series, 2)
	burger, fries := series[0], series[1]
	assert.Equal(t, venue.ItemID("burger"), burger.Item)
	assert.Equal(t, venue.CategoryID("commodity"), burger.Category)
	require.Len(t, burger.Days, 2)
	assert.Equal(t, 0.0, burger.Days[0].Quantity)
	assert.Equal(t, 9.0, burger.Days[0].Price)

	require.Len(t, fries.Days, 2)
	merged := fries.Days[0]
	assert.Equal(t, day0.AddDate(0, 0, 1), merged.Date)
	assert.Equal(t, 8.0, merged.Quantity)
	assert.InDelta(t, 11.5, merged.Price, 1e-9)
	assert.True(t, merged.Promoted)
	assert.Equal(t, day0.AddDate(0, 0, 2), fries.Days[1].Date)
}

func TestNormalizeRejectsOtherTenant(t *testing.T) {
	other := obs("fries", 1, 2, 10)
	other.Tenant = "venue-b"

	testData := map[string]struct {
		tenant venue.TenantID
		raw    []DemandObservation
		err    error
	}{
		"other tenant row": {
			tenant: "venue-a",
			raw:    []DemandObservation{obs("fries", 0, 1, 10), other},
			err:    venue.ErrTenantMismatch,
		},
		"empty tenant": {
			tenant: "",
			raw:    []DemandObservation{obs("fries", 0, 1, 10)},
			err:    venue.ErrEmptyTenant,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			series, report, err := Normalize(td.tenant, td.raw, nil)
			assert.ErrorIs(t, err, td.err)
			assert.Nil(t, series)
			assert.Nil(t, report)
		})
	}
}

func TestSeriesHistory(t *testing.T) {
	christmas := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	cal, err := event.NewCalendar(nil, event.NewEvent("festival", christmas.AddDate(0, 0, 1), christmas.AddDate(0, 0, 2)))
	require.Nil(t, err)

	s := Series{
		Tenant: "venue-a",
		Item:   "fries",
		Days: []DemandObservation{
			{Date: christmas, Quantity: 5, Calendar: Calendar{Holiday: true}, Weather: Weather{TemperatureC: 4}},
			{Date: christmas.AddDate(0, 0, 1), Quantity: 0, Stockout: true, Promoted: true},
			{Date: christmas.AddDate(0, 0, 3), Quantity: 7},
		},
	}

	hist := s.History(cal)
	require.Len(t, hist, 3)
	assert.True(t, hist[0].Day.Holiday)
	assert.Equal(t, 4.0, hist[0].Day.TemperatureC)
	assert.True(t, hist[1].Day.LocalEvent)
	assert.True(t, hist[1].Day.Promoted)
	assert.True(t, hist[1].Stockout)
	assert.False(t, hist[2].Day.LocalEvent)

	td, err := s.Dataset()
	require.Nil(t, err)
	assert.Equal(t, 3, td.Len())
	assert.Equal(t, 4, td.Span())
	assert.True(t, math.IsNaN(td.Y[1]))
	assert.Equal(t, 2, td.DropNan().Len())

	velocity, active := s.Velocity()
	assert.Equal(t, 2, active)
	assert.InDelta(t, 3.0, velocity, 1e-9)
}

func TestNormalizeGaps(t *testing.T) {
	raw := []DemandObservation{
		obs("soup", 0, 3, 6),
		obs("soup", 3, 2, 6),
		obs("fries", 0, 1, 4),
		obs("fries", 1, 1, 4),
		obs("bread", 4, 5, 2),
		obs("bread", 2, 5, 2),
	}

	series, report, err := Normalize("venue-a", raw, noInference())
	require.Nil(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, []Gap{
		{Item: "bread", Days: []time.Time{day0.AddDate(0, 0, 3)}},
		{Item: "soup", Days: []time.Time{day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2)}},
	}, report.Gaps)

	// gap days are not filled with zero sales
	soup := series[2]
	assert.Equal(t, venue.ItemID("soup"), soup.Item)
	assert.Len(t, soup.Days, 2)
}

func TestHorizonDays(t *testing.T) {
	days := HorizonDays([]DayContext{
		{Date: day0.Add(13 * time.Hour), Weather: Weather{PrecipitationMM: 3}},
		{Date: day0.AddDate(0, 0, 1), Calendar: Calendar{Event: "concert"}},
	}, nil)
	require.Len(t, days, 2)
	assert.Equal(t, day0, days[0].T)
	assert.Equal(t, 3.0, days[0].PrecipitationMM)
	assert.False(t, days[0].LocalEvent)
	assert.True(t, days[1].LocalEvent)
}
