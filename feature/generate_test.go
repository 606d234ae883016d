package feature

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // monday
	days := make([]Day, 14)
	for i := range days {
		days[i] = Day{T: start.AddDate(0, 0, i), TemperatureC: 28, PrecipitationMM: 0}
	}
	days[3].Holiday = true
	days[5].Promoted = true
	days[6].PrecipitationMM = math.E - 1

	testData := map[string]struct {
		opt      *Options
		numFeats int
		validate func(t *testing.T, s *Set)
	}{
		"defaults": {
			opt:      nil,
			numFeats: 6 + 4 + 2 + 3,
			validate: func(t *testing.T, s *Set) {
				mon, exists := s.Get(DayOfWeek(time.Monday))
				require.True(t, exists)
				assert.Equal(t, 1.0, mon[0])
				assert.Equal(t, 1.0, mon[7])
				assert.Equal(t, 0.0, mon[1])

				_, exists = s.Get(DayOfWeek(time.Sunday))
				assert.False(t, exists, "sunday is the baseline")

				temp, _ := s.Get(NewWeather(WeatherTemperature))
				assert.InDelta(t, 1.0, temp[0], 1e-12)
				precip, _ := s.Get(NewWeather(WeatherPrecipitation))
				assert.InDelta(t, 1.0, precip[6], 1e-12)

				hol, _ := s.Get(NewFlag(FlagHoliday))
				assert.Equal(t, 1.0, hol[3])
				promo, _ := s.Get(NewFlag(FlagPromotion))
				assert.Equal(t, 1.0, promo[5])

				cos, _ := s.Get(NewAnnual(1, FourierCompCos))
				assert.InDelta(t, 1.0, cos[0], 1e-12)
			},
		},
		"day of week only": {
			opt:      &Options{DayOfWeek: true},
			numFeats: 6,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			s, err := Generate(days, td.opt)
			require.NoError(t, err)
			assert.Equal(t, td.numFeats, s.Len())
			assert.Equal(t, len(days), s.Rows())
			if td.validate != nil {
				td.validate(t, s)
			}
		})
	}

	_, err := Generate(days, &Options{AnnualOrders: -1})
	assert.ErrorIs(t, err, ErrNegativeAnnualOrder)
}
