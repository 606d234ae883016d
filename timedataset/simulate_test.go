package timedataset

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestGenerateT(t *testing.T) {
	nowFunc := func() time.Time {
		return time.Date(1970, 1, 8, 0, 0, 0, 0, time.UTC)
	}

	numPnts := 7
	res := GenerateT(numPnts, 24*time.Hour, nowFunc)
	assert.Len(t, res, numPnts)

	assert.Equal(t, res[0], time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, res[numPnts-1], time.Date(1970, 1, 7, 0, 0, 0, 0, time.UTC))
}

func TestSeries(t *testing.T) {
	numPnts := 7
	s := Series(GenerateConstY(numPnts, 1))

	res := s.Add(GenerateConstY(numPnts, 2))
	require.Equal(t, Series([]float64{3, 3, 3, 3, 3, 3, 3}), res)

	nowFunc := func() time.Time {
		return time.Date(1970, 1, 8, 0, 0, 0, 0, time.UTC)
	}

	tSeries := GenerateT(numPnts, 24*time.Hour, nowFunc)
	s.SetConst(tSeries, 2.0,
		time.Date(1970, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC),
	)
	assert.Equal(t, Series([]float64{3, 3, 2, 2, 3, 3, 3}), s)

	s.MaskWithWeekend(tSeries)
	assert.Equal(t, Series([]float64{0, 0, 2, 2, 0, 0, 0}), s)

	s.Add(GenerateConstY(numPnts, 1))
	s.MaskWithTimeRange(
		time.Date(1970, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC),
		tSeries,
	)
	assert.Equal(t, Series([]float64{0, 0, 3, 3, 1, 0, 0}), s)
}

func TestGenerateNegBinCounts(t *testing.T) {
	n := 4000
	rate := GenerateConstY(n, 12)

	testData := map[string]struct {
		phi float64
	}{
		"poisson":       {0},
		"overdispersed": {0.25},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			y, err := GenerateNegBinCounts(rate, td.phi, "seed-"+name)
			require.NoError(t, err)
			require.Len(t, y, n)

			mean, variance := stat.MeanVariance(y, nil)
			assert.InDelta(t, 12.0, mean, 0.5)
			assert.InDelta(t, 12.0+td.phi*144.0, variance, 0.15*(12.0+td.phi*144.0))

			again, err := GenerateNegBinCounts(rate, td.phi, "seed-"+name)
			require.NoError(t, err)
			assert.Equal(t, y, again)
		})
	}
}

func TestGenerateWeekdayY(t *testing.T) {
	ts := DaysFrom(time.Date(1970, 1, 4, 0, 0, 0, 0, time.UTC), 7) // sunday start
	y := GenerateWeekdayY(ts, [7]float64{0, 1, 2, 3, 4, 5, 6})
	assert.Equal(t, Series([]float64{0, 1, 2, 3, 4, 5, 6}), y)
	assert.InDeltaSlice(t, []float64{1, math.E}, Series([]float64{0, 1}).Exp(), 1e-12)
}
