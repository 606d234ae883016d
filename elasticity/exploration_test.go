package elasticity

import (
	"fmt"
	"testing"
	"time"

	"github.com/aouyang1/go-demandcast/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplorationDraw(t *testing.T) {
	x, err := NewExploration(nil)
	require.Nil(t, err)

	day := time.Date(2024, 5, 4, 15, 30, 0, 0, time.UTC)
	first := x.Draw("venue-a", "latte", day)
	assert.Equal(t, first, x.Draw("venue-a", "latte", venue.Day(day)))

	explored := 0
	n := 20000
	for i := 0; i < n; i++ {
		a := x.Draw("venue-a", venue.ItemID(fmt.Sprintf("item-%d", i%200)), day.AddDate(0, 0, i/200))
		if !a.Explore {
			assert.Equal(t, 0.0, a.Discount)
			continue
		}
		explored++
		assert.Contains(t, x.Tier(), a.Discount)
	}
	rate := float64(explored) / float64(n)
	assert.InDelta(t, DefaultExplorationRate, rate, 0.01)
}

func TestExplorationRateBounds(t *testing.T) {
	testData := map[string]struct {
		rate    float64
		explore bool
	}{
		"never":  {rate: 0, explore: false},
		"always": {rate: 1, explore: true},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt := NewDefaultOptions()
			opt.ExplorationRate = td.rate
			x, err := NewExploration(opt)
			require.Nil(t, err)
			for i := 0; i < 100; i++ {
				a := x.Draw("venue-a", venue.ItemID(fmt.Sprintf("item-%d", i)), t0)
				assert.Equal(t, td.explore, a.Explore)
			}
		})
	}
}

func TestExplorationTierDiscount(t *testing.T) {
	x, err := NewExploration(nil)
	require.Nil(t, err)
	assert.Equal(t, 0.08, x.MaxTierDiscount())
	assert.Equal(t, DefaultExplorationRate, x.Rate())

	d := x.TierDiscount("venue-a", "latte", t0)
	assert.Contains(t, x.Tier(), d)
	assert.Equal(t, d, x.TierDiscount("venue-a", "latte", t0))
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(nil)
	require.Nil(t, err)

	a, err := r.For("venue-a")
	require.Nil(t, err)
	again, err := r.For("venue-a")
	require.Nil(t, err)
	assert.Same(t, a, again)

	b, err := r.For("venue-b")
	require.Nil(t, err)

	_, err = a.Update(Observation{Item: "latte", Discount: 0.05, Lift: 1.2, Timestamp: t0})
	require.Nil(t, err)
	assert.Equal(t, 1, a.Estimate("latte", "").ObservationCount)
	assert.Equal(t, 0, b.Estimate("latte", "").ObservationCount)
	assert.Equal(t, []venue.TenantID{"venue-a", "venue-b"}, r.Tenants())

	_, err = r.For("")
	assert.ErrorIs(t, err, venue.ErrEmptyTenant)
}
