package featurestore

import (
	"fmt"
	"math"
	"time"

	"github.com/aouyang1/go-demandcast/stats"
	"github.com/aouyang1/go-demandcast/venue"
	"gonum.org/v1/gonum/stat"
)

// StockoutInference is a zero sale day inferred to be a stockout
type StockoutInference struct {
	Item       venue.ItemID `json:"item_id"`
	Date       time.Time    `json:"date"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
}

func (s StockoutInference) less(o StockoutInference) bool {
	if s.Item != o.Item {
		return s.Item < o.Item
	}
	return s.Date.Before(o.Date)
}

// InferStockouts flags the zero sale days of the series that are likely stockouts and marks the
// recorded ones as censored. Zero days without a record are reported only. Items below the low
// velocity threshold are never flagged as their zero days are ordinary.
func InferStockouts(s *Series, opt *Options) []StockoutInference {
	opt, err := opt.Validate()
	if err != nil || len(s.Days) == 0 {
		return nil
	}
	velocity, active := s.Velocity()
	if active < opt.MinActiveDays || velocity < opt.LowVelocity {
		return nil
	}

	first := venue.Day(s.Days[0].Date)
	n := s.span()
	sold := make([]bool, n)
	rows := make(map[int]int, len(s.Days))
	var saleDays []int
	for i, o := range s.Days {
		idx := dayIndex(first, o.Date)
		rows[idx] = i
		if o.Quantity > 0 {
			sold[idx] = true
			saleDays = append(saleDays, idx)
		}
	}
	avgGap := averageGap(saleDays)

	var res []StockoutInference
	for idx := 0; idx < n; idx++ {
		if sold[idx] {
			continue
		}
		row, recorded := rows[idx]
		if recorded && s.Days[row].Stockout {
			continue
		}

		var conf float64
		var reason string
		if velocity >= opt.HighVelocity {
			conf = opt.HighVelocityConf
			reason = fmt.Sprintf("zero sales for high velocity item (%.1f/day)", velocity)
		} else {
			gap := gapLength(idx, saleDays, n)
			if avgGap <= 0 || float64(gap) <= avgGap*opt.GapMultiplier {
				continue
			}
			conf = opt.MediumVelocityConf
			reason = fmt.Sprintf("gap of %d days exceeds %.1fx the average gap of %.1f days", gap, opt.GapMultiplier, avgGap)
		}
		if recorded {
			s.Days[row].Stockout = true
		}
		res = append(res, StockoutInference{
			Item:       s.Item,
			Date:       first.AddDate(0, 0, idx),
			Confidence: conf,
			Reason:     reason,
		})
	}
	return res
}

func dayIndex(first, t time.Time) int {
	return int(venue.Day(t).Sub(first).Hours() / 24)
}

// averageGap is the mean number of days without a sale between sales, over the gaps of at least
// one day
func averageGap(saleDays []int) float64 {
	var gaps []float64
	for i := 1; i < len(saleDays); i++ {
		if g := saleDays[i] - saleDays[i-1] - 1; g > 0 {
			gaps = append(gaps, float64(g))
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	return stat.Mean(gaps, nil)
}

// gapLength is the number of days without a sale around idx. A gap running to the end of the
// series is counted up to its last day.
func gapLength(idx int, saleDays []int, n int) int {
	prev, next := -1, -1
	for _, d := range saleDays {
		if d < idx {
			prev = d
			continue
		}
		if d > idx {
			next = d
			break
		}
	}
	switch {
	case prev >= 0 && next >= 0:
		return next - prev - 1
	case prev >= 0:
		return n - 1 - prev
	}
	return 0
}

// PromotionInference is a run of days priced below the robust baseline price
type PromotionInference struct {
	Item        venue.ItemID `json:"item_id"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Baseline    float64      `json:"baseline_price"`
	MeanPrice   float64      `json:"promo_avg_price"`
	DiscountPct float64      `json:"discount_pct"`
	Confidence  float64      `json:"confidence"`
}

func (p PromotionInference) less(o PromotionInference) bool {
	if p.Item != o.Item {
		return p.Item < o.Item
	}
	return p.Start.Before(o.Start)
}

// InferPromotions marks runs of discounted priced days as promoted and returns them. The
// baseline is the trimmed mean price, or the median of small samples, and the threshold lies
// DiscountSigmas robust standard deviations below it.
func InferPromotions(s *Series, opt *Options) []PromotionInference {
	opt, err := opt.Validate()
	if err != nil {
		return nil
	}
	var idx []int
	var prices []float64
	for i, o := range s.Days {
		if o.Price > 0 {
			idx = append(idx, i)
			prices = append(prices, o.Price)
		}
	}
	if len(prices) < opt.MinPriceDays || len(prices) == 0 {
		return nil
	}

	baseline, sd, err := robustPrice(prices, opt)
	if err != nil || sd <= 0 {
		return nil
	}
	threshold := baseline - opt.DiscountSigmas*sd

	var res []PromotionInference
	for start := 0; start < len(prices); {
		if prices[start] >= threshold {
			start++
			continue
		}
		end := start
		for end+1 < len(prices) && prices[end+1] < threshold {
			end++
		}
		length := end - start + 1
		if length >= opt.MinPromotionDays {
			period := prices[start : end+1]
			mean, variance := stat.PopMeanVariance(period, nil)
			res = append(res, PromotionInference{
				Item:        s.Item,
				Start:       s.Days[idx[start]].Date,
				End:         s.Days[idx[end]].Date,
				Baseline:    baseline,
				MeanPrice:   mean,
				DiscountPct: (baseline - mean) / baseline,
				Confidence:  promotionConfidence((baseline-mean)/sd, length, math.Sqrt(variance)/sd),
			})
			for i := start; i <= end; i++ {
				s.Days[idx[i]].Promoted = true
			}
		}
		start = end + 1
	}
	return res
}

func robustPrice(prices []float64, opt *Options) (float64, float64, error) {
	var baseline float64
	var err error
	if len(prices) < opt.MinTrimmedPoints {
		baseline, err = stats.Median(prices)
	} else {
		baseline, err = stats.TrimmedMean(prices, opt.BaselineTrim)
	}
	if err != nil {
		return 0, 0, err
	}
	dev := make([]float64, len(prices))
	for i, p := range prices {
		dev[i] = math.Abs(p - baseline)
	}
	mad, err := stats.Median(dev)
	if err != nil {
		return 0, 0, err
	}
	return baseline, math.Max(stats.MADScale*mad, opt.MinSDFraction*baseline), nil
}

// promotionConfidence weighs how far below the baseline, how long and how consistent the
// discounted run is
func promotionConfidence(sigmasBelow float64, length int, relativeSpread float64) float64 {
	depth := math.Min(1, sigmasBelow/2)
	duration := math.Min(1, float64(length)/7)
	consistency := 1 - math.Min(1, relativeSpread)
	return 0.4*depth + 0.3*duration + 0.3*consistency
}
