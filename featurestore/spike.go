package featurestore

import (
	"time"

	"github.com/aouyang1/go-demandcast/stats"
	"github.com/aouyang1/go-demandcast/venue"
)

// SpikeInference is a day selling far above the item's usual range, typically a group order or
// an event the calendar does not know about
type SpikeInference struct {
	Item     venue.ItemID `json:"item_id"`
	Date     time.Time    `json:"date"`
	Quantity float64      `json:"quantity"`
	Median   float64      `json:"median"`
}

func (s SpikeInference) less(o SpikeInference) bool {
	if s.Item != o.Item {
		return s.Item < o.Item
	}
	return s.Date.Before(o.Date)
}

// InferSpikes reports the days selling above the interquartile range widened by SpikeTukeyFactor.
// Stockout days are left out of the range and series with fewer than MinSpikeDays days are
// skipped. Spikes are reported only, the rows are kept as recorded.
func InferSpikes(s *Series, opt *Options) []SpikeInference {
	opt, err := opt.Validate()
	if err != nil {
		return nil
	}
	var idx []int
	var qty []float64
	for i, o := range s.Days {
		if o.Stockout {
			continue
		}
		idx = append(idx, i)
		qty = append(qty, o.Quantity)
	}
	if len(qty) < opt.MinSpikeDays || len(qty) == 0 {
		return nil
	}
	median, err := stats.Median(qty)
	if err != nil {
		return nil
	}

	var res []SpikeInference
	for _, i := range stats.DetectOutliers(qty, 0.25, 0.75, opt.SpikeTukeyFactor) {
		if qty[i] <= median {
			continue
		}
		o := s.Days[idx[i]]
		res = append(res, SpikeInference{
			Item:     s.Item,
			Date:     o.Date,
			Quantity: o.Quantity,
			Median:   median,
		})
	}
	return res
}
