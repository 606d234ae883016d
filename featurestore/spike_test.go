package featurestore

import (
	"testing"

	"github.com/aouyang1/go-demandcast/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spikeRows(item venue.ItemID, n int) []DemandObservation {
	rows := make([]DemandObservation, 0, n)
	for i := 0; i < n; i++ {
		o := obs(item, i, float64(10+i%3), 8)
		switch i {
		case 10:
			o.Quantity = 60
		case 15:
			o.Quantity = 0
		case 20:
			o.Quantity = 0
			o.Stockout = true
		}
		rows = append(rows, o)
	}
	return rows
}

func TestInferSpikes(t *testing.T) {
	testData := map[string]struct {
		days     int
		mutate   func(opt *Options)
		expected []int
	}{
		"group order flagged": {
			days:     28,
			expected: []int{10},
		},
		"too few days": {
			days: 12,
		},
		"wide factor": {
			days:   28,
			mutate: func(opt *Options) { opt.SpikeTukeyFactor = 30 },
		},
		"disabled": {
			days:   28,
			mutate: func(opt *Options) { opt.InferSpikes = false },
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt := noInference()
			if td.mutate != nil {
				td.mutate(opt)
			}
			raw := append(spikeRows("soup", td.days), obs("bread", 0, 4, 3))
			_, report, err := Normalize("venue-a", raw, opt)
			require.Nil(t, err)

			require.Len(t, report.Spikes, len(td.expected))
			for i, d := range td.expected {
				spike := report.Spikes[i]
				assert.Equal(t, venue.ItemID("soup"), spike.Item)
				assert.Equal(t, day0.AddDate(0, 0, d), spike.Date)
				assert.Equal(t, 60.0, spike.Quantity)
				assert.Equal(t, 11.0, spike.Median)
			}
		})
	}
}
