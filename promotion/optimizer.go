package promotion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aouyang1/go-demandcast/elasticity"
	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/venue"
	"go.uber.org/zap"
)

const (
	solverName = "promotion"
	improveTol = 1e-9
)

// candidate is the precomputed per item state of a solve
type candidate struct {
	item       Item
	q0         float64
	eps        float64
	confidence venue.Confidence
	grid       []float64

	// fixed candidates hold an exploration discount and are never moved by the search
	fixed bool
	subs  []int
	cross map[int]float64
}

// Optimizer solves single day promotion problems
type Optimizer struct {
	opt     *Options
	explore *elasticity.Exploration
}

// NewOptimizer creates a promotions optimizer
func NewOptimizer(opt *Options) (*Optimizer, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	explore, err := elasticity.NewExploration(opt.Elasticity)
	if err != nil {
		return nil, err
	}
	return &Optimizer{opt: opt, explore: explore}, nil
}

type solver struct {
	o     *Optimizer
	req   Request
	cands []candidate
	level []int

	deadline    time.Time
	evaluations int
}

// Optimize returns the best discounts found for the request. A feasible result is always
// returned for valid input: when the time budget or the context expires first, the incumbent is
// returned along with a *venue.SolverTimeoutError holding the optimality gap.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := req.Tenant.Validate(); err != nil {
		return nil, err
	}
	if req.Constraints.MaxPromotions < 0 || req.Constraints.MaxDiscountSpend < 0 {
		return nil, ErrNegativeBudget
	}

	s := &solver{o: o, req: req, deadline: start.Add(o.opt.TimeBudget)}
	if dl, ok := ctx.Deadline(); ok && dl.Before(s.deadline) {
		s.deadline = dl
	}
	if err := s.init(); err != nil {
		return nil, err
	}

	s.placeExploration()
	baseline := s.baseline()

	complete := s.greedy(ctx) && s.localSearch(ctx)

	res := s.result(baseline)
	status := metrics.StatusFeasible
	var err error
	switch {
	case !complete:
		status = metrics.StatusTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			status = metrics.StatusCancelled
		}
		err = &venue.SolverTimeoutError{Solver: solverName, Tenant: req.Tenant, Gap: res.Gap}
		zap.L().Warn("promotion solve stopped early, returning incumbent",
			zap.String("tenant", string(req.Tenant)),
			zap.Float64("gap", res.Gap),
			zap.Int("evaluations", s.evaluations),
		)
	case res.Gap < improveTol:
		status = metrics.StatusOptimal
	}
	res.Status = status

	metrics.SolverRuns.WithLabelValues(solverName, status).Inc()
	metrics.SolveDuration.WithLabelValues(solverName).Observe(time.Since(start).Seconds())
	return res, err
}

func (s *solver) init() error {
	items := make([]Item, len(s.req.Items))
	copy(items, s.req.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	index := make(map[venue.ItemID]int, len(items))
	s.cands = make([]candidate, len(items))
	s.level = make([]int, len(items))
	for i, it := range items {
		if err := it.validate(); err != nil {
			return err
		}
		if _, exists := index[it.ID]; exists {
			return fmt.Errorf("item %s, %w", it.ID, ErrDuplicateItem)
		}
		index[it.ID] = i

		demand, exists := s.req.Demand[it.ID]
		if !exists {
			return fmt.Errorf("item %s, %w", it.ID, ErrMissingDemand)
		}
		est, exists := s.req.Elasticities[it.ID]
		if !exists {
			est = elasticity.Estimate{Mean: s.o.opt.Elasticity.CategoryMean(it.Category), Confidence: venue.ConfidenceLow}
		}

		c := candidate{
			item:       it,
			q0:         math.Max(demand.Quantity, 0),
			eps:        est.Mean,
			confidence: est.Confidence.Min(demand.Confidence),
		}
		c.grid = s.o.grid(it, est.Confident())
		s.cands[i] = c
	}

	for i := range s.cands {
		id := s.cands[i].item.ID
		if cross, exists := s.req.CrossElasticity[id]; exists {
			s.cands[i].cross = make(map[int]float64, len(cross))
			for sub, share := range cross {
				if j, ok := index[sub]; ok && j != i {
					s.cands[i].cross[j] = share
				}
			}
			continue
		}
		for j := range s.cands {
			if j != i && s.cands[j].item.Category == s.cands[i].item.Category {
				s.cands[i].subs = append(s.cands[i].subs, j)
			}
		}
	}
	return nil
}

// grid returns the ascending discounts an item may take, always starting at zero. Items without a
// confident elasticity only get the exploration tier.
func (o *Optimizer) grid(it Item, confident bool) []float64 {
	ceiling := it.DiscountCeiling()
	grid := []float64{0}
	if !confident {
		for _, d := range o.explore.Tier() {
			if d <= ceiling+1e-12 {
				grid = append(grid, d)
			}
		}
		sort.Float64s(grid)
		return grid
	}
	for k := 1; ; k++ {
		d := math.Round(float64(k)*o.opt.DiscountStep*1e6) / 1e6
		if d > ceiling+1e-12 {
			break
		}
		grid = append(grid, d)
	}
	return grid
}

// placeExploration fixes exploration draws first, most urgent items first, while the budget allows
func (s *solver) placeExploration() {
	order := s.rankOrder()
	for _, i := range order {
		c := &s.cands[i]
		draw := s.o.explore.Draw(s.req.Tenant, c.item.ID, s.req.Date)
		if !draw.Explore {
			continue
		}
		lvl := -1
		for k, d := range c.grid {
			if math.Abs(d-draw.Discount) < 1e-9 {
				lvl = k
				break
			}
		}
		if lvl < 0 {
			// tier discount above the item's ceiling
			continue
		}
		prev := s.level[i]
		s.level[i] = lvl
		if !s.feasible() {
			s.level[i] = prev
			continue
		}
		c.fixed = true
	}
}

// rankOrder returns candidate indices by descending urgency, then ascending expiry and id
func (s *solver) rankOrder() []int {
	order := make([]int, len(s.cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := s.cands[order[a]].item, s.cands[order[b]].item
		if ua, ub := ia.Urgency(), ib.Urgency(); ua != ub {
			return ua > ub
		}
		if ea, eb := ia.expiry(), ib.expiry(); ea != eb {
			return ea < eb
		}
		return ia.ID < ib.ID
	})
	return order
}

func (s *solver) discount(i int) float64 {
	return s.cands[i].grid[s.level[i]]
}

func (s *solver) sales(i int, d float64) float64 {
	c := s.cands[i]
	q := s.o.opt.Elasticity.Response(c.q0, c.eps, d)
	if c.item.Stock > 0 {
		q = math.Min(q, c.item.Stock)
	}
	return q
}

// profit is the standalone contribution of item i at discount d less the cost of stock expected
// to expire unsold
func (s *solver) profit(i int, d float64) float64 {
	it := s.cands[i].item
	q := s.sales(i, d)
	p := (it.Price*(1-d) - it.UnitCost) * q
	if it.DaysToExpiry > 0 && it.Stock > 0 {
		p -= it.UnitCost * math.Max(0, it.Stock-q*it.DaysToExpiry)
	}
	return p
}

func (s *solver) unitMargin(j int) float64 {
	it := s.cands[j].item
	return math.Max(it.Price*(1-s.discount(j))-it.UnitCost, 0)
}

// cannibalization is the substitute margin lost to the lift of item i at its current level
func (s *solver) cannibalization(i int) float64 {
	d := s.discount(i)
	if d == 0 {
		return 0
	}
	lift := s.sales(i, d) - s.sales(i, 0)
	if lift <= 0 {
		return 0
	}
	c := s.cands[i]
	lost := 0.0
	if c.cross != nil {
		for j, share := range c.cross {
			lost += share * lift * s.unitMargin(j)
		}
		return lost
	}
	if len(c.subs) == 0 {
		return 0
	}
	for _, j := range c.subs {
		lost += s.unitMargin(j)
	}
	return s.o.opt.CannibalizationRate * lift * lost / float64(len(c.subs))
}

func (s *solver) delta(i int) float64 {
	d := s.discount(i)
	return s.profit(i, d) - s.profit(i, 0) - s.o.opt.CannibalLambda*s.cannibalization(i)
}

func (s *solver) baseline() float64 {
	total := 0.0
	for i := range s.cands {
		total += s.profit(i, 0)
	}
	return total
}

func (s *solver) objective() float64 {
	s.evaluations++
	total := 0.0
	for i := range s.cands {
		total += s.profit(i, s.discount(i)) - s.o.opt.CannibalLambda*s.cannibalization(i)
	}
	return total
}

func (s *solver) feasible() bool {
	count := 0
	spend := 0.0
	for i, c := range s.cands {
		d := s.discount(i)
		if d == 0 {
			continue
		}
		count++
		spend += d * c.item.Price * s.sales(i, d)
	}
	if m := s.req.Constraints.MaxPromotions; m > 0 && count > m {
		return false
	}
	if m := s.req.Constraints.MaxDiscountSpend; m > 0 && spend > m+1e-9 {
		return false
	}
	return true
}

func (s *solver) expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.o.opt.TimeBudget > 0 && time.Now().After(s.deadline)
}

// better reports whether moving item i to a solution with gain beats the incumbent move on item
// best with bestGain: higher gain wins and equal gains prefer the item expiring sooner
func (s *solver) better(gain float64, i int, bestGain float64, best int) bool {
	if best < 0 {
		return gain > improveTol
	}
	if gain > bestGain+improveTol {
		return true
	}
	if gain < bestGain-improveTol {
		return false
	}
	ei, eb := s.cands[i].item.expiry(), s.cands[best].item.expiry()
	if ei != eb {
		return ei < eb
	}
	ui, ub := s.cands[i].item.Urgency(), s.cands[best].item.Urgency()
	if ui != ub {
		return ui > ub
	}
	return s.cands[i].item.ID < s.cands[best].item.ID
}

// greedy repeatedly applies the single item level change with the largest objective gain.
// Returns false if the time budget ran out.
func (s *solver) greedy(ctx context.Context) bool {
	current := s.objective()
	for {
		if s.expired(ctx) {
			return false
		}
		best, bestLvl, bestGain := -1, 0, 0.0
		for _, i := range s.rankOrder() {
			if s.cands[i].fixed {
				continue
			}
			prev := s.level[i]
			for lvl := range s.cands[i].grid {
				if lvl == prev {
					continue
				}
				s.level[i] = lvl
				if s.feasible() {
					gain := s.objective() - current
					if s.better(gain, i, bestGain, best) {
						best, bestLvl, bestGain = i, lvl, gain
					}
				}
			}
			s.level[i] = prev
		}
		if best < 0 {
			return true
		}
		s.level[best] = bestLvl
		current += bestGain
	}
}

// localSearch tries swaps that move a promotion slot from one item to another, accepting the
// first improving swap, until no swap improves. Returns false if the time budget ran out.
func (s *solver) localSearch(ctx context.Context) bool {
	current := s.objective()
	for iter := 0; iter < s.o.opt.MaxLocalSearch || s.o.opt.MaxLocalSearch == 0; iter++ {
		improved := false
	search:
		for i := range s.cands {
			if s.cands[i].fixed || s.level[i] == 0 {
				continue
			}
			for j := range s.cands {
				if j == i || s.cands[j].fixed {
					continue
				}
				if s.expired(ctx) {
					return false
				}
				prevI, prevJ := s.level[i], s.level[j]
				for lvl := range s.cands[j].grid {
					if lvl == prevJ {
						continue
					}
					s.level[i], s.level[j] = 0, lvl
					if s.feasible() {
						if next := s.objective(); next > current+improveTol {
							current = next
							improved = true
							break search
						}
					}
					s.level[i], s.level[j] = prevI, prevJ
				}
			}
		}
		if !improved {
			return true
		}
		// a swap may open budget for a single item improvement
		if !s.greedy(ctx) {
			return false
		}
		current = s.objective()
	}
	return true
}

// upperBound relaxes the budgets and cannibalization: every free item takes its best
// standalone discount
func (s *solver) upperBound() float64 {
	total := 0.0
	for i, c := range s.cands {
		if c.fixed {
			total += s.profit(i, s.discount(i))
			continue
		}
		best := math.Inf(-1)
		for _, d := range c.grid {
			best = math.Max(best, s.profit(i, d))
		}
		total += best
	}
	return total
}

func (s *solver) result(baseline float64) *Result {
	obj := s.objective()
	ub := math.Max(s.upperBound(), obj)
	gap := 0.0
	if ub-obj > improveTol {
		gap = (ub - obj) / math.Max(math.Abs(ub), 1e-9)
	}

	res := &Result{
		Decisions:         make([]Decision, 0, len(s.cands)),
		Objective:         obj,
		BaselineObjective: baseline,
		UpperBound:        ub,
		Gap:               gap,
	}
	for i, c := range s.cands {
		d := s.discount(i)
		dec := Decision{
			Tenant:       s.req.Tenant,
			Item:         c.item.ID,
			Date:         venue.Day(s.req.Date),
			DiscountPct:  d,
			UrgencyScore: c.item.Urgency(),
			Confidence:   c.confidence,
			Source:       SourceNone,
		}
		if d > 0 {
			dec.ExpectedProfitDelta = s.delta(i)
			dec.Source = SourceOptimized
			if c.fixed {
				dec.Source = SourceExploration
			}
		}
		res.Decisions = append(res.Decisions, dec)
	}

	expiry := make(map[venue.ItemID]float64, len(s.cands))
	for _, c := range s.cands {
		expiry[c.item.ID] = c.item.expiry()
	}
	sort.SliceStable(res.Decisions, func(a, b int) bool {
		da, db := res.Decisions[a], res.Decisions[b]
		if pa, pb := da.DiscountPct > 0, db.DiscountPct > 0; pa != pb {
			return pa
		}
		if math.Abs(da.ExpectedProfitDelta-db.ExpectedProfitDelta) > improveTol {
			return da.ExpectedProfitDelta > db.ExpectedProfitDelta
		}
		if ea, eb := expiry[da.Item], expiry[db.Item]; ea != eb {
			return ea < eb
		}
		if da.UrgencyScore != db.UrgencyScore {
			return da.UrgencyScore > db.UrgencyScore
		}
		return da.Item < db.Item
	})
	res.Evaluations = s.evaluations
	return res
}
