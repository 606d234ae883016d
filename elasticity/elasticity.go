// Package elasticity estimates per item price elasticity of demand with a conjugate normal
// posterior fed by exploration promotions, and exposes the demand response used by the
// promotions optimizer.
package elasticity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/venue"
	"go.uber.org/zap"
)

var (
	ErrStaleObservation = errors.New("observation is older than the last applied update")
	ErrInvalidLift      = errors.New("observed lift must be positive and finite")
	ErrEmptyKey         = errors.New("empty item key")
)

// Source tags how the promotion behind an observation was chosen
type Source int

const (
	// SourceExploration is a small random discount chosen independently of demand or urgency
	SourceExploration Source = iota

	// SourceOrganic is a discount chosen by the optimizer or a manager, correlated with demand
	SourceOrganic
)

func (s Source) String() string {
	switch s {
	case SourceExploration:
		return "exploration"
	case SourceOrganic:
		return "organic"
	}
	return "unknown"
}

// Observation is the measured demand lift of one promoted item day
type Observation struct {
	Tenant    venue.TenantID   `json:"tenant"`
	Item      venue.ItemID     `json:"item_id"`
	Category  venue.CategoryID `json:"category_id"`
	Discount  float64          `json:"discount_pct"`
	Lift      float64          `json:"observed_lift"`
	Source    Source           `json:"source"`
	Timestamp time.Time        `json:"timestamp"`
}

// Estimate is the posterior summary of an item's elasticity
type Estimate struct {
	Tenant           venue.TenantID   `json:"tenant"`
	Item             venue.ItemID     `json:"key"`
	Category         venue.CategoryID `json:"category_id"`
	Mean             float64          `json:"mean_elasticity"`
	Variance         float64          `json:"variance"`
	Confidence       venue.Confidence `json:"confidence"`
	ObservationCount int              `json:"observation_count"`
	OrganicCount     int              `json:"organic_count"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// SD returns the posterior standard deviation
func (e Estimate) SD() float64 {
	return math.Sqrt(e.Variance)
}

// Confident reports whether the estimate can drive full optimization discounts
func (e Estimate) Confident() bool {
	return e.Confidence > venue.ConfidenceLow
}

// posterior is the mutable state of one item, guarded by its own lock
type posterior struct {
	sync.Mutex

	category    venue.CategoryID
	mean        float64
	variance    float64
	exploration int
	organic     int
	updatedAt   time.Time

	// standardized squared innovations of the most recent applied observations
	innovations []float64
}

// Estimator holds the elasticity posteriors of a single tenant. Updates to the same item are
// serialized and applied in timestamp order; updates to different items run concurrently.
type Estimator struct {
	tenant venue.TenantID
	opt    *Options

	mu    sync.Mutex
	items map[venue.ItemID]*posterior
}

// NewEstimator creates the estimator of a tenant
func NewEstimator(tenant venue.TenantID, opt *Options) (*Estimator, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Estimator{
		tenant: tenant,
		opt:    opt,
		items:  make(map[venue.ItemID]*posterior),
	}, nil
}

// Tenant returns the tenant the estimator belongs to
func (e *Estimator) Tenant() venue.TenantID {
	return e.tenant
}

// Options returns the estimator options
func (e *Estimator) Options() *Options {
	return e.opt
}

func (e *Estimator) prior(category venue.CategoryID) *posterior {
	return &posterior{
		category: category,
		mean:     e.opt.CategoryMean(category),
		variance: e.opt.PriorSD * e.opt.PriorSD,
	}
}

func (e *Estimator) get(item venue.ItemID, category venue.CategoryID) *posterior {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, exists := e.items[item]
	if !exists {
		p = e.prior(category)
		e.items[item] = p
	}
	return p
}

func (e *Estimator) lookup(item venue.ItemID) (*posterior, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, exists := e.items[item]
	return p, exists
}

func (e *Estimator) summarize(item venue.ItemID, p *posterior) Estimate {
	conf := venue.ConfidenceLow
	switch {
	case p.exploration >= e.opt.HighConfidenceObs:
		conf = venue.ConfidenceHigh
	case p.exploration >= e.opt.MinExplorationObs:
		conf = venue.ConfidenceMedium
	}
	return Estimate{
		Tenant:           e.tenant,
		Item:             item,
		Category:         p.category,
		Mean:             p.mean,
		Variance:         p.variance,
		Confidence:       conf,
		ObservationCount: p.exploration,
		OrganicCount:     p.organic,
		UpdatedAt:        p.updatedAt,
	}
}

// Estimate returns the current posterior of the item. Items never observed return their
// category prior with low confidence.
func (e *Estimator) Estimate(item venue.ItemID, category venue.CategoryID) Estimate {
	p, exists := e.lookup(item)
	if !exists {
		return e.summarize(item, e.prior(category))
	}
	p.Lock()
	defer p.Unlock()
	return e.summarize(item, p)
}

// ImpliedElasticity inverts the demand response for an observed lift at discount d
func ImpliedElasticity(lift, d, saturation float64) (float64, error) {
	if d <= 0 || d >= 1 {
		return 0, ErrInvalidDiscount
	}
	if lift <= 0 || math.IsNaN(lift) || math.IsInf(lift, 0) {
		return 0, ErrInvalidLift
	}
	denom := d * (1 - saturation*d)
	if denom <= 0 {
		return 0, fmt.Errorf("discount %.3f is past saturation, %w", d, ErrInvalidDiscount)
	}
	return (lift - 1) / denom, nil
}

// Update applies one observation and returns the resulting estimate. Exploration observations
// always update the posterior while organic ones only do under the weighted policy. An
// observation older than the item's last update is rejected with ErrStaleObservation. A
// *venue.RegimeChangeWarning may be returned alongside an applied update.
func (e *Estimator) Update(obs Observation) (Estimate, error) {
	if obs.Tenant != "" && obs.Tenant != e.tenant {
		return Estimate{}, fmt.Errorf("observation tenant %s on estimator %s, %w", obs.Tenant, e.tenant, venue.ErrTenantMismatch)
	}
	if obs.Item == "" {
		return Estimate{}, ErrEmptyKey
	}
	implied, err := ImpliedElasticity(obs.Lift, obs.Discount, e.opt.Saturation)
	if err != nil {
		return Estimate{}, err
	}

	p := e.get(obs.Item, obs.Category)
	p.Lock()
	defer p.Unlock()

	if obs.Timestamp.Before(p.updatedAt) {
		return e.summarize(obs.Item, p), fmt.Errorf("item %s at %s, %w", obs.Item, obs.Timestamp, ErrStaleObservation)
	}

	weight := 1.0
	if obs.Source == SourceOrganic {
		p.organic++
		if e.opt.Policy != ReconcileWeighted {
			p.updatedAt = obs.Timestamp
			metrics.ElasticityUpdates.WithLabelValues(obs.Source.String(), "false").Inc()
			return e.summarize(obs.Item, p), nil
		}
		weight = e.opt.OrganicWeight
	}
	if weight <= 0 {
		p.updatedAt = obs.Timestamp
		metrics.ElasticityUpdates.WithLabelValues(obs.Source.String(), "false").Inc()
		return e.summarize(obs.Item, p), nil
	}

	obsVar := e.opt.ObservationSD * e.opt.ObservationSD / weight
	innovation := implied - p.mean
	predictedVar := p.variance + obsVar

	precision := 1/p.variance + 1/obsVar
	p.mean = (p.mean/p.variance + implied/obsVar) / precision
	p.variance = 1 / precision
	p.updatedAt = obs.Timestamp
	if obs.Source == SourceExploration {
		p.exploration++
	}
	metrics.ElasticityUpdates.WithLabelValues(obs.Source.String(), "true").Inc()

	p.innovations = append(p.innovations, innovation*innovation/predictedVar)
	if len(p.innovations) > e.opt.RegimeWindow {
		p.innovations = p.innovations[len(p.innovations)-e.opt.RegimeWindow:]
	}

	est := e.summarize(obs.Item, p)
	if ratio, ok := e.regimeRatio(p); ok {
		metrics.RegimeWarnings.Inc()
		zap.L().Warn("elasticity regime change suspected",
			zap.String("tenant", string(e.tenant)),
			zap.String("item", string(obs.Item)),
			zap.Float64("ratio", ratio),
		)
		return est, &venue.RegimeChangeWarning{Tenant: e.tenant, Key: string(obs.Item), Ratio: ratio}
	}
	return est, nil
}

func (e *Estimator) regimeRatio(p *posterior) (float64, bool) {
	if e.opt.RegimeWindow <= 0 || len(p.innovations) < e.opt.RegimeWindow {
		return 0, false
	}
	sum := 0.0
	for _, z := range p.innovations {
		sum += z
	}
	ratio := sum / float64(len(p.innovations))
	return ratio, ratio > e.opt.RegimeRatio
}

// ApplyBatch sorts the observations by timestamp and applies each in order. Stale and invalid
// observations are skipped and reported along with regime change warnings in the joined error.
func (e *Estimator) ApplyBatch(obs []Observation) (map[venue.ItemID]Estimate, error) {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	res := make(map[venue.ItemID]Estimate)
	var errs []error
	for i, o := range sorted {
		est, err := e.Update(o)
		if err != nil {
			errs = append(errs, fmt.Errorf("observation %d, %w", i, err))
			var warning *venue.RegimeChangeWarning
			if !errors.As(err, &warning) {
				continue
			}
		}
		res[o.Item] = est
	}
	return res, errors.Join(errs...)
}

// Reset returns the item to its category prior. It is the only operation that raises the
// posterior variance.
func (e *Estimator) Reset(item venue.ItemID) Estimate {
	p, exists := e.lookup(item)
	if !exists {
		p = e.get(item, "")
	}
	p.Lock()
	fresh := e.prior(p.category)
	p.mean = fresh.mean
	p.variance = fresh.variance
	p.exploration = 0
	p.organic = 0
	p.updatedAt = time.Time{}
	p.innovations = nil
	est := e.summarize(item, p)
	p.Unlock()

	zap.L().Info("elasticity estimate reset",
		zap.String("tenant", string(e.tenant)),
		zap.String("item", string(item)),
	)
	return est
}

// Snapshot returns every tracked estimate sorted by item
func (e *Estimator) Snapshot() []Estimate {
	e.mu.Lock()
	items := make([]venue.ItemID, 0, len(e.items))
	for item := range e.items {
		items = append(items, item)
	}
	e.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })

	res := make([]Estimate, 0, len(items))
	for _, item := range items {
		p, _ := e.lookup(item)
		p.Lock()
		res = append(res, e.summarize(item, p))
		p.Unlock()
	}
	return res
}

// Restore seeds posteriors from previously snapshotted estimates of the same tenant
func (e *Estimator) Restore(estimates []Estimate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, est := range estimates {
		if est.Tenant != e.tenant {
			return fmt.Errorf("estimate for tenant %s, %w", est.Tenant, venue.ErrTenantMismatch)
		}
		if est.Variance <= 0 {
			return fmt.Errorf("item %s variance %f, %w", est.Item, est.Variance, ErrNonPositiveSD)
		}
		e.items[est.Item] = &posterior{
			category:    est.Category,
			mean:        est.Mean,
			variance:    est.Variance,
			exploration: est.ObservationCount,
			organic:     est.OrganicCount,
			updatedAt:   est.UpdatedAt,
		}
	}
	return nil
}
