package labor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/venue"
	"go.uber.org/zap"
)

const (
	solverName = "labor"
	improveTol = 1e-9
)

// Violation constraints reported by the scheduler
const (
	ConstraintCoverage     = "coverage"
	ConstraintMinHours     = "min_hours"
	ConstraintLockOverlap  = "lock_overlap"
	ConstraintLockMaxHours = "lock_max_hours"
)

// Cost breaks down the objective of a schedule
type Cost struct {
	Wages      float64 `json:"wages"`
	Understaff float64 `json:"understaff"`
	Shortfall  float64 `json:"contract_shortfall"`
	Preference float64 `json:"preference"`
	Fairness   float64 `json:"fairness"`
	Churn      float64 `json:"churn"`
	Total      float64 `json:"total"`
}

// SlotCoverage compares the staffed hours of a demand slot with its requirement
type SlotCoverage struct {
	Window
	Need          int     `json:"need"`
	RequiredHours float64 `json:"required_hours"`
	StaffHours    float64 `json:"staff_hours"`
	Deficit       float64 `json:"deficit"`
}

// Solution is the outcome of a scheduling solve. It is returned for every valid problem, along
// with a *venue.SolverInfeasibleError when hard constraints remain violated or a
// *venue.SolverTimeoutError when the search stopped early.
type Solution struct {
	Tenant      venue.TenantID               `json:"tenant"`
	Period      venue.Period                 `json:"period"`
	Assignments []ShiftAssignment            `json:"assignments"`
	Cost        Cost                         `json:"cost"`
	Coverage    []SlotCoverage               `json:"coverage"`
	Hours       map[venue.EmployeeID]float64 `json:"hours"`
	Violations  []venue.Violation            `json:"violations,omitempty"`
	LowerBound  float64                      `json:"lower_bound"`
	Gap         float64                      `json:"optimality_gap"`
	Status      string                       `json:"status"`
	Iterations  int                          `json:"iterations"`
}

// Assigned reports whether the employee works the shift
func (s *Solution) Assigned(e venue.EmployeeID, shift venue.ShiftID) bool {
	if s == nil {
		return false
	}
	for _, a := range s.Assignments {
		if a.Employee == e && a.Shift == shift {
			return true
		}
	}
	return false
}

// Scheduler solves labor scheduling problems
type Scheduler struct {
	opt *Options
}

// NewScheduler creates a labor scheduler
func NewScheduler(opt *Options) (*Scheduler, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Scheduler{opt: opt}, nil
}

// Options returns the scheduler options
func (sc *Scheduler) Options() *Options {
	return sc.opt
}

type slotOverlap struct {
	slot  int
	hours float64
}

type pairKey struct {
	employee int
	template string
}

type solver struct {
	opt *Options
	p   Problem

	emps   []Employee
	shifts []Shift
	slots  []DemandSlot

	hours    []float64
	week     []int
	weeks    int
	overlap  [][]slotOverlap
	required []float64
	need     []int
	avail    [][]Window
	limited  []bool
	partners [][]int

	assigned  [][]bool
	locked    [][]bool
	staff     []float64
	weekHours [][]float64
	weekend   []float64
	sumWE     float64
	sumWE2    float64
	pairs     map[pairKey]int
	previous  map[pairKey]struct{}

	violations []venue.Violation
	deadline   time.Time
	iterations int
}

// Solve assigns employees to shifts. Locks are seeded first and never changed. Slots short of
// staff are then filled with the cheapest available assignments whatever they cost, and the rest
// is added greedily and improved by local search over removals and reassignments that never
// reopen a coverage deficit.
// Search order is fixed so the same problem always yields the same schedule when the search
// completes within its budget.
func (sc *Scheduler) Solve(ctx context.Context, p Problem) (*Solution, error) {
	start := time.Now()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s, err := newSolver(sc.opt, p)
	if err != nil {
		return nil, err
	}
	s.deadline = start.Add(sc.opt.TimeBudget)
	if dl, ok := ctx.Deadline(); ok && dl.Before(s.deadline) {
		s.deadline = dl
	}

	s.seedLocks()
	complete := s.cover(ctx) && s.greedy(ctx) && s.localSearch(ctx)

	sol := s.solution()
	switch {
	case !complete:
		sol.Status = metrics.StatusTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			sol.Status = metrics.StatusCancelled
		}
		err = &venue.SolverTimeoutError{Solver: solverName, Tenant: p.Tenant, Gap: sol.Gap}
		zap.L().Warn("labor solve stopped early, returning incumbent",
			zap.String("tenant", string(p.Tenant)),
			zap.Float64("gap", sol.Gap),
			zap.Int("iterations", s.iterations),
		)
	case len(sol.Violations) > 0:
		sol.Status = metrics.StatusInfeasible
		err = &venue.SolverInfeasibleError{Solver: solverName, Tenant: p.Tenant, Violations: sol.Violations}
		zap.L().Warn("labor solve infeasible",
			zap.String("tenant", string(p.Tenant)),
			zap.Int("violations", len(sol.Violations)),
		)
	case sol.Gap < improveTol:
		sol.Status = metrics.StatusOptimal
	default:
		sol.Status = metrics.StatusFeasible
	}

	metrics.SolverRuns.WithLabelValues(solverName, sol.Status).Inc()
	metrics.SolveDuration.WithLabelValues(solverName).Observe(time.Since(start).Seconds())
	return sol, err
}

func newSolver(opt *Options, p Problem) (*solver, error) {
	s := &solver{opt: opt, p: p}

	s.emps = make([]Employee, len(p.Employees))
	copy(s.emps, p.Employees)
	sort.Slice(s.emps, func(i, j int) bool { return s.emps[i].ID < s.emps[j].ID })

	s.shifts = make([]Shift, len(p.Shifts))
	copy(s.shifts, p.Shifts)
	sort.Slice(s.shifts, func(i, j int) bool {
		if !s.shifts[i].Start.Equal(s.shifts[j].Start) {
			return s.shifts[i].Start.Before(s.shifts[j].Start)
		}
		return s.shifts[i].ID < s.shifts[j].ID
	})

	s.slots = make([]DemandSlot, len(p.Demand))
	copy(s.slots, p.Demand)
	sort.SliceStable(s.slots, func(i, j int) bool { return s.slots[i].Start.Before(s.slots[j].Start) })

	empIdx := make(map[venue.EmployeeID]int, len(s.emps))
	for i, e := range s.emps {
		empIdx[e.ID] = i
	}

	// iso weeks of the shifts, in order
	weekIdx := make(map[int]int)
	weekKeys := make([]int, 0)
	for _, sh := range s.shifts {
		y, w := sh.Start.UTC().ISOWeek()
		key := y*100 + w
		if _, exists := weekIdx[key]; !exists {
			weekKeys = append(weekKeys, key)
		}
		weekIdx[key] = 0
	}
	sort.Ints(weekKeys)
	for i, k := range weekKeys {
		weekIdx[k] = i
	}
	s.weeks = len(weekKeys)

	s.hours = make([]float64, len(s.shifts))
	s.week = make([]int, len(s.shifts))
	s.overlap = make([][]slotOverlap, len(s.shifts))
	for j, sh := range s.shifts {
		s.hours[j] = sh.Hours()
		y, w := sh.Start.UTC().ISOWeek()
		s.week[j] = weekIdx[y*100+w]
		for k, slot := range s.slots {
			if h := slot.Overlap(sh); h > 0 {
				s.overlap[j] = append(s.overlap[j], slotOverlap{slot: k, hours: h})
			}
		}
	}

	s.need = make([]int, len(s.slots))
	s.required = make([]float64, len(s.slots))
	for k, slot := range s.slots {
		s.need[k] = slot.Need(opt)
		s.required[k] = float64(s.need[k]) * slot.End.Sub(slot.Start).Hours()
	}

	n := len(s.emps)
	s.avail = make([][]Window, n)
	s.limited = make([]bool, n)
	s.partners = make([][]int, n)
	s.assigned = make([][]bool, n)
	s.locked = make([][]bool, n)
	s.weekHours = make([][]float64, n)
	s.weekend = make([]float64, n)
	for i, e := range s.emps {
		windows, exists := p.Availability[e.ID]
		s.avail[i] = windows
		s.limited[i] = exists
		s.assigned[i] = make([]bool, len(s.shifts))
		s.locked[i] = make([]bool, len(s.shifts))
		s.weekHours[i] = make([]float64, s.weeks)
	}
	for _, c := range p.Conflicts {
		a, b := empIdx[c.A], empIdx[c.B]
		if a == b {
			continue
		}
		s.partners[a] = append(s.partners[a], b)
		s.partners[b] = append(s.partners[b], a)
	}
	s.staff = make([]float64, len(s.slots))

	s.pairs = make(map[pairKey]int)
	s.previous = make(map[pairKey]struct{}, len(p.Previous))
	for _, a := range p.Previous {
		if a.Tenant != "" && a.Tenant != p.Tenant {
			return nil, fmt.Errorf("previous assignment of %s, %w", a.Employee, venue.ErrTenantMismatch)
		}
		e, exists := empIdx[a.Employee]
		if !exists {
			continue
		}
		tmpl := a.Template
		if tmpl == "" {
			tmpl = string(a.Shift)
		}
		s.previous[pairKey{employee: e, template: tmpl}] = struct{}{}
	}
	return s, nil
}

func template(sh Shift) string {
	if sh.Template == "" {
		return string(sh.ID)
	}
	return sh.Template
}

func (s *solver) index(l Lock) (int, int) {
	e, j := -1, -1
	for i := range s.emps {
		if s.emps[i].ID == l.Employee {
			e = i
			break
		}
	}
	for i := range s.shifts {
		if s.shifts[i].ID == l.Shift {
			j = i
			break
		}
	}
	return e, j
}

// seedLocks fixes every lock regardless of availability or skill. Locks that break overlap or
// weekly maximum hours are kept and reported as violations.
func (s *solver) seedLocks() {
	for _, l := range s.p.Locks {
		e, j := s.index(l)
		if s.assigned[e][j] {
			continue
		}
		for k := range s.shifts {
			if s.locked[e][k] && s.shifts[k].Overlaps(s.shifts[j]) {
				s.violations = append(s.violations, venue.Violation{
					Constraint: ConstraintLockOverlap,
					Subject:    string(l.Employee),
					Magnitude:  overlapHours(s.shifts[k], s.shifts[j]),
					Detail:     fmt.Sprintf("%s overlaps %s", l.Shift, s.shifts[k].ID),
				})
			}
		}
		s.apply(e, j, 1)
		s.locked[e][j] = true
	}
	for e, emp := range s.emps {
		if emp.MaxHours <= 0 {
			continue
		}
		for w, h := range s.weekHours[e] {
			if h > emp.MaxHours+improveTol {
				s.violations = append(s.violations, venue.Violation{
					Constraint: ConstraintLockMaxHours,
					Subject:    string(emp.ID),
					Magnitude:  h - emp.MaxHours,
					Detail:     fmt.Sprintf("week %d", w),
				})
			}
		}
	}
}

func overlapHours(a, b Shift) float64 {
	return Window{Start: a.Start, End: a.End}.Overlap(b)
}

// available reports whether employee e may take shift j without breaking a hard constraint
func (s *solver) available(e, j int) bool {
	if s.assigned[e][j] {
		return false
	}
	emp := s.emps[e]
	sh := s.shifts[j]
	if !emp.HasSkill(sh.Skill) {
		return false
	}
	if s.limited[e] {
		inside := false
		for _, w := range s.avail[e] {
			if w.Contains(sh) {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	if emp.MaxHours > 0 && s.weekHours[e][s.week[j]]+s.hours[j] > emp.MaxHours+improveTol {
		return false
	}
	for k, other := range s.shifts {
		if !s.assigned[e][k] {
			continue
		}
		if other.Overlaps(sh) {
			return false
		}
		if !other.End.After(sh.Start) && sh.Start.Sub(other.End) < s.opt.MinRest {
			return false
		}
		if !sh.End.After(other.Start) && other.Start.Sub(sh.End) < s.opt.MinRest {
			return false
		}
	}
	for _, b := range s.partners[e] {
		for k, other := range s.shifts {
			if s.assigned[b][k] && other.Overlaps(sh) {
				return false
			}
		}
	}
	return true
}

func variance(sum, sum2, n float64) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / n
	return math.Max(sum2/n-mean*mean, 0)
}

// change returns the objective delta of adding (sign 1) or removing (sign -1) employee e on
// shift j without applying it
func (s *solver) change(e, j int, sign float64) float64 {
	emp := s.emps[e]
	sh := s.shifts[j]
	h := s.hours[j]

	d := sign * emp.Wage * h
	d -= sign * emp.Preferences[sh.Template] * s.opt.PreferenceWeight
	for _, o := range s.overlap[j] {
		before := math.Max(s.required[o.slot]-s.staff[o.slot], 0)
		after := math.Max(s.required[o.slot]-s.staff[o.slot]-sign*o.hours, 0)
		d += s.opt.UnderstaffPenalty * (after - before)
	}
	if emp.MinHours > 0 {
		wh := s.weekHours[e][s.week[j]]
		before := math.Max(emp.MinHours-wh, 0)
		after := math.Max(emp.MinHours-wh-sign*h, 0)
		d += s.opt.UnderstaffPenalty * (after - before)
	}
	if sh.Weekend() {
		n := float64(len(s.emps))
		c := s.weekend[e]
		next := variance(s.sumWE+sign, s.sumWE2+sign*2*c+1, n)
		d += s.opt.FairnessWeight * (next - variance(s.sumWE, s.sumWE2, n))
	}
	key := pairKey{employee: e, template: template(sh)}
	_, before := s.previous[key]
	cnt := s.pairs[key]
	switch {
	case sign > 0 && cnt == 0:
		if before {
			d -= s.opt.ChurnWeight
		} else {
			d += s.opt.ChurnWeight
		}
	case sign < 0 && cnt == 1:
		if before {
			d += s.opt.ChurnWeight
		} else {
			d -= s.opt.ChurnWeight
		}
	}
	return d
}

func (s *solver) apply(e, j int, sign float64) {
	sh := s.shifts[j]
	s.assigned[e][j] = sign > 0
	for _, o := range s.overlap[j] {
		s.staff[o.slot] += sign * o.hours
	}
	s.weekHours[e][s.week[j]] += sign * s.hours[j]
	if sh.Weekend() {
		c := s.weekend[e]
		s.sumWE += sign
		s.sumWE2 += sign*2*c + 1
		s.weekend[e] += sign
	}
	key := pairKey{employee: e, template: template(sh)}
	s.pairs[key] += int(sign)
	if s.pairs[key] == 0 {
		delete(s.pairs, key)
	}
}

func (s *solver) expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.opt.TimeBudget > 0 && time.Now().After(s.deadline)
}

// relief returns the staff hours of unmet coverage that employee time on shift j would fill
func (s *solver) relief(j int) float64 {
	r := 0.0
	for _, o := range s.overlap[j] {
		r += math.Min(o.hours, math.Max(s.required[o.slot]-s.staff[o.slot], 0))
	}
	return r
}

// uncovers reports whether removing an employee from shift j leaves any slot short
func (s *solver) uncovers(j int) bool {
	for _, o := range s.overlap[j] {
		if s.staff[o.slot]-o.hours < s.required[o.slot]-improveTol {
			return true
		}
	}
	return false
}

// cover adds the cheapest available assignment filling a coverage deficit until no deficit is
// left or none can be filled. Returns false if the time budget ran out.
func (s *solver) cover(ctx context.Context) bool {
	for {
		if s.expired(ctx) {
			return false
		}
		bestE, bestJ, bestD := -1, -1, math.Inf(1)
		for j := range s.shifts {
			if s.relief(j) < improveTol {
				continue
			}
			for e := range s.emps {
				if !s.available(e, j) {
					continue
				}
				if d := s.change(e, j, 1); d < bestD {
					bestE, bestJ, bestD = e, j, d
				}
			}
		}
		if bestE < 0 {
			return true
		}
		s.apply(bestE, bestJ, 1)
		s.iterations++
	}
}

// greedy repeatedly adds the assignment with the largest objective decrease. Returns false if the
// time budget ran out.
func (s *solver) greedy(ctx context.Context) bool {
	for {
		if s.expired(ctx) {
			return false
		}
		bestE, bestJ, bestD := -1, -1, -improveTol
		for j := range s.shifts {
			for e := range s.emps {
				if !s.available(e, j) {
					continue
				}
				if d := s.change(e, j, 1); d < bestD {
					bestE, bestJ, bestD = e, j, d
				}
			}
		}
		if bestE < 0 {
			return true
		}
		s.apply(bestE, bestJ, 1)
		s.iterations++
	}
}

// localSearch applies the first improving removal or reassignment of a free assignment and
// reruns the greedy phase, until nothing improves. Returns false if the time budget ran out.
func (s *solver) localSearch(ctx context.Context) bool {
	for iter := 0; iter < s.opt.MaxIterations || s.opt.MaxIterations == 0; iter++ {
		if !s.improve(ctx) {
			return !s.expired(ctx)
		}
		s.iterations++
		if !s.greedy(ctx) {
			return false
		}
	}
	return true
}

func (s *solver) improve(ctx context.Context) bool {
	for j := range s.shifts {
		for e := range s.emps {
			if !s.assigned[e][j] || s.locked[e][j] {
				continue
			}
			if s.expired(ctx) {
				return false
			}
			removal := s.change(e, j, -1)
			if removal < -improveTol && !s.uncovers(j) {
				s.apply(e, j, -1)
				return true
			}
			s.apply(e, j, -1)
			for other := range s.emps {
				if other == e || !s.available(other, j) {
					continue
				}
				if removal+s.change(other, j, 1) < -improveTol {
					s.apply(other, j, 1)
					return true
				}
			}
			s.apply(e, j, 1)
		}
	}
	return false
}

func (s *solver) cost() Cost {
	var c Cost
	for e, emp := range s.emps {
		for j, sh := range s.shifts {
			if !s.assigned[e][j] {
				continue
			}
			c.Wages += emp.Wage * s.hours[j]
			c.Preference -= emp.Preferences[sh.Template] * s.opt.PreferenceWeight
		}
		if emp.MinHours > 0 {
			for _, h := range s.weekHours[e] {
				c.Shortfall += s.opt.UnderstaffPenalty * math.Max(emp.MinHours-h, 0)
			}
		}
	}
	for k := range s.slots {
		c.Understaff += s.opt.UnderstaffPenalty * math.Max(s.required[k]-s.staff[k], 0)
	}
	c.Fairness = s.opt.FairnessWeight * variance(s.sumWE, s.sumWE2, float64(len(s.emps)))
	churn := 0
	for key := range s.pairs {
		if _, exists := s.previous[key]; !exists {
			churn++
		}
	}
	for key := range s.previous {
		if _, exists := s.pairs[key]; !exists {
			churn++
		}
	}
	c.Churn = s.opt.ChurnWeight * float64(churn)
	c.Total = c.Wages + c.Understaff + c.Shortfall + c.Preference + c.Fairness + c.Churn
	return c
}

// lowerBound is the locked wage bill or the required staff hours at the cheapest wage, whichever
// is larger
func (s *solver) lowerBound() float64 {
	locked := 0.0
	for e, emp := range s.emps {
		for j := range s.shifts {
			if s.locked[e][j] {
				locked += emp.Wage * s.hours[j]
			}
		}
	}
	rate := s.opt.UnderstaffPenalty
	for _, emp := range s.emps {
		rate = math.Min(rate, emp.Wage)
	}
	required := 0.0
	for _, r := range s.required {
		required += r
	}
	return math.Max(locked, required*math.Max(rate, 0))
}

func (s *solver) solution() *Solution {
	sol := &Solution{
		Tenant:      s.p.Tenant,
		Period:      s.p.Period,
		Assignments: make([]ShiftAssignment, 0),
		Cost:        s.cost(),
		Coverage:    make([]SlotCoverage, len(s.slots)),
		Hours:       make(map[venue.EmployeeID]float64, len(s.emps)),
		Iterations:  s.iterations,
	}
	for j, sh := range s.shifts {
		for e, emp := range s.emps {
			if !s.assigned[e][j] {
				continue
			}
			sol.Assignments = append(sol.Assignments, ShiftAssignment{
				Tenant:   s.p.Tenant,
				Employee: emp.ID,
				Shift:    sh.ID,
				Template: sh.Template,
				Date:     venue.Day(sh.Start),
				Locked:   s.locked[e][j],
			})
		}
	}
	for e, emp := range s.emps {
		total := 0.0
		for w, h := range s.weekHours[e] {
			total += h
			if emp.MinHours > 0 && h < emp.MinHours-improveTol {
				s.violations = append(s.violations, venue.Violation{
					Constraint: ConstraintMinHours,
					Subject:    string(emp.ID),
					Magnitude:  emp.MinHours - h,
					Detail:     fmt.Sprintf("week %d", w),
				})
			}
		}
		sol.Hours[emp.ID] = total
	}
	for k, slot := range s.slots {
		deficit := math.Max(s.required[k]-s.staff[k], 0)
		if deficit < improveTol {
			deficit = 0
		}
		sol.Coverage[k] = SlotCoverage{
			Window:        slot.Window,
			Need:          s.need[k],
			RequiredHours: s.required[k],
			StaffHours:    s.staff[k],
			Deficit:       deficit,
		}
		if deficit > 0 {
			s.violations = append(s.violations, venue.Violation{
				Constraint: ConstraintCoverage,
				Subject:    slot.Start.UTC().Format(time.RFC3339),
				Magnitude:  deficit,
				Detail:     fmt.Sprintf("need %d staff", s.need[k]),
			})
		}
	}
	sol.Violations = s.violations

	sol.LowerBound = s.lowerBound()
	if obj := sol.Cost.Total; obj-sol.LowerBound > improveTol {
		sol.Gap = math.Min((obj-sol.LowerBound)/math.Max(math.Abs(obj), 1e-9), 1)
	}
	return sol
}
