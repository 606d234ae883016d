package featurestore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/venue"
	"go.uber.org/zap"
)

var ErrEmptyItem = errors.New("observation without item id")

// Report summarizes the changes Normalize made to the raw records
type Report struct {
	Tenant     venue.TenantID       `json:"tenant"`
	Rows       int                  `json:"rows"`
	Merged     int                  `json:"merged"`
	Dropped    int                  `json:"dropped"`
	Issues     []string             `json:"issues,omitempty"`
	Stockouts  []StockoutInference  `json:"stockouts,omitempty"`
	Promotions []PromotionInference `json:"promotions,omitempty"`
	Spikes     []SpikeInference     `json:"spikes,omitempty"`
	Gaps       []Gap                `json:"gaps,omitempty"`
}

// Gap lists the calendar days inside an item's history without any demand row. They are left
// out of the fit rather than filled with zero sales.
type Gap struct {
	Item venue.ItemID `json:"item_id"`
	Days []time.Time  `json:"days"`
}

type dayKey struct {
	item venue.ItemID
	day  time.Time
}

// Normalize merges the raw records of a tenant into one series per item sorted by item. Rows of
// the same item day are merged with summed quantity and quantity weighted price, rows with a
// negative or missing quantity are dropped and reported, and any row of another tenant rejects
// the whole batch with venue.ErrTenantMismatch. Enabled inferences then flag stockout and
// promoted days and report demand spikes.
func Normalize(tenant venue.TenantID, raw []DemandObservation, opt *Options) ([]Series, *Report, error) {
	if err := tenant.Validate(); err != nil {
		return nil, nil, err
	}
	opt, err := opt.Validate()
	if err != nil {
		return nil, nil, err
	}

	report := &Report{Tenant: tenant, Rows: len(raw)}
	merged := make(map[dayKey]*DemandObservation)
	for i, o := range raw {
		if o.Tenant != tenant {
			return nil, nil, fmt.Errorf("row %d of tenant %q, %w", i, o.Tenant, venue.ErrTenantMismatch)
		}
		if o.Item == "" {
			report.drop(fmt.Sprintf("row %d, %s", i, ErrEmptyItem))
			continue
		}
		if o.Quantity < 0 || math.IsNaN(o.Quantity) || math.IsInf(o.Quantity, 0) {
			report.drop(fmt.Sprintf("row %d of %s on %s has quantity %v", i, o.Item, o.Date.Format(time.DateOnly), o.Quantity))
			continue
		}

		o.Date = venue.Day(o.Date)
		key := dayKey{item: o.Item, day: o.Date}
		prev, exists := merged[key]
		if !exists {
			row := o
			merged[key] = &row
			continue
		}
		report.Merged++
		mergeInto(prev, o)
	}
	if report.Dropped > 0 {
		metrics.DataQualityFlags.WithLabelValues("featurestore").Add(float64(report.Dropped))
		zap.L().Warn("dropped invalid demand rows",
			zap.String("tenant", string(tenant)),
			zap.Int("dropped", report.Dropped),
			zap.Strings("issues", report.Issues),
		)
	}

	byItem := make(map[venue.ItemID]*Series)
	for _, o := range merged {
		s, exists := byItem[o.Item]
		if !exists {
			s = &Series{Tenant: tenant, Item: o.Item}
			byItem[o.Item] = s
		}
		if s.Category == "" {
			s.Category = o.Category
		}
		s.Days = append(s.Days, *o)
	}

	res := make([]Series, 0, len(byItem))
	for _, s := range byItem {
		sort.Slice(s.Days, func(i, j int) bool { return s.Days[i].Date.Before(s.Days[j].Date) })
		if opt.InferStockouts {
			report.Stockouts = append(report.Stockouts, InferStockouts(s, opt)...)
		}
		if opt.InferPromotions {
			report.Promotions = append(report.Promotions, InferPromotions(s, opt)...)
		}
		if opt.InferSpikes {
			report.Spikes = append(report.Spikes, InferSpikes(s, opt)...)
		}
		if missing := s.dates().Missing(); len(missing) > 0 {
			report.Gaps = append(report.Gaps, Gap{Item: s.Item, Days: missing})
		}
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Item < res[j].Item })
	sort.SliceStable(report.Stockouts, func(i, j int) bool { return report.Stockouts[i].less(report.Stockouts[j]) })
	sort.SliceStable(report.Promotions, func(i, j int) bool { return report.Promotions[i].less(report.Promotions[j]) })
	sort.SliceStable(report.Spikes, func(i, j int) bool { return report.Spikes[i].less(report.Spikes[j]) })
	sort.Slice(report.Gaps, func(i, j int) bool { return report.Gaps[i].Item < report.Gaps[j].Item })
	return res, report, nil
}

func (r *Report) drop(issue string) {
	r.Dropped++
	r.Issues = append(r.Issues, issue)
}

func mergeInto(dst *DemandObservation, o DemandObservation) {
	total := dst.Quantity + o.Quantity
	switch {
	case total > 0:
		dst.Price = (dst.Price*dst.Quantity + o.Price*o.Quantity) / total
	case dst.Price <= 0:
		dst.Price = o.Price
	}
	dst.Quantity = total
	dst.Promoted = dst.Promoted || o.Promoted
	dst.Stockout = dst.Stockout || o.Stockout
	dst.Calendar.Holiday = dst.Calendar.Holiday || o.Calendar.Holiday
	if dst.Calendar.Event == "" {
		dst.Calendar.Event = o.Calendar.Event
	}
	if dst.Category == "" {
		dst.Category = o.Category
	}
}
