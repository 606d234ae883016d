package event

import (
	"testing"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
	"github.com/stretchr/testify/assert"
)

func TestHoliday(t *testing.T) {
	testData := map[string]struct {
		hol       *cal.Holiday
		start     time.Time
		end       time.Time
		durBefore time.Duration
		durAfter  time.Duration
		expected  []Event
	}{
		"simple": {
			hol:       us.ChristmasDay,
			start:     time.Date(2024, 12, 8, 1, 0, 0, 0, time.UTC),
			end:       time.Date(2026, 12, 8, 1, 0, 0, 0, time.UTC),
			durBefore: 0,
			durAfter:  0,
			expected: []Event{
				{
					Name:  "Christmas_Day_2024",
					Start: time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC),
					End:   time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC),
				},
				{
					Name:  "Christmas_Day_2025",
					Start: time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC),
					End:   time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC),
				},
			},
		},
		"non utc tz": {
			hol:       us.ChristmasDay,
			start:     time.Date(2024, 12, 8, 1, 0, 0, 0, time.FixedZone("UTC-8", -8*60*60)),
			end:       time.Date(2026, 12, 8, 1, 0, 0, 0, time.FixedZone("UTC-8", -8*60*60)),
			durBefore: 0,
			durAfter:  0,
			expected: []Event{
				{
					Name:  "Christmas_Day_2024",
					Start: time.Date(2024, 12, 25, 0, 0, 0, 0, time.FixedZone("UTC-8", -8*60*60)),
					End:   time.Date(2024, 12, 26, 0, 0, 0, 0, time.FixedZone("UTC-8", -8*60*60)),
				},
				{
					Name:  "Christmas_Day_2025",
					Start: time.Date(2025, 12, 25, 0, 0, 0, 0, time.FixedZone("UTC-8", -8*60*60)),
					End:   time.Date(2025, 12, 26, 0, 0, 0, 0, time.FixedZone("UTC-8", -8*60*60)),
				},
			},
		},

		"with buffer": {
			hol:       us.ChristmasDay,
			start:     time.Date(2024, 12, 8, 1, 0, 0, 0, time.UTC),
			end:       time.Date(2026, 12, 8, 1, 0, 0, 0, time.UTC),
			durBefore: time.Duration(24 * time.Hour),
			durAfter:  time.Duration(2 * 24 * time.Hour),
			expected: []Event{
				{
					Name:  "Christmas_Day_2024",
					Start: time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC),
					End:   time.Date(2024, 12, 28, 0, 0, 0, 0, time.UTC),
				},
				{
					Name:  "Christmas_Day_2025",
					Start: time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC),
					End:   time.Date(2025, 12, 28, 0, 0, 0, 0, time.UTC),
				},
			},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res := Holiday(td.hol, td.start, td.end, td.durBefore, td.durAfter)
			assert.Equal(t, td.expected, res)
		})
	}
}

func TestCalendar(t *testing.T) {
	concert := NewEvent(
		"stadium_concert",
		time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC),
	)
	c, err := NewCalendar(USHolidays, concert, Event{Name: "broken"})
	assert.ErrorIs(t, err, ErrUnsetTime)

	testData := map[string]struct {
		day     time.Time
		holiday bool
		local   []string
	}{
		"independence day with concert": {
			day:     time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
			holiday: true,
			local:   []string{"stadium_concert"},
		},
		"concert eve": {
			day:   time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC),
			local: []string{"stadium_concert"},
		},
		"ordinary day": {
			day: time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC),
		},
		"christmas": {
			day:     time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC),
			holiday: true,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.holiday, c.IsHoliday(td.day))
			assert.Equal(t, td.local, c.LocalEvents(td.day))
		})
	}

	events := c.Events(
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
	)
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"stadium_concert", "Independence_Day_2024"}, names)

	var nilCal *Calendar
	assert.False(t, nilCal.IsHoliday(time.Now()))
}
