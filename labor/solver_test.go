package labor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aouyang1/go-demandcast/metrics"
	"github.com/aouyang1/go-demandcast/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// week of monday 2024-07-08
var monday = time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return monday.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
}

func shift(id venue.ShiftID, tmpl string, day, start, end int) Shift {
	return Shift{ID: id, Template: tmpl, Start: at(day, start), End: at(day, end)}
}

func slot(day, start, end int, covers float64) DemandSlot {
	return DemandSlot{Window: Window{Start: at(day, start), End: at(day, end)}, Covers: covers}
}

func newProblem(employees []Employee, shifts []Shift, demand []DemandSlot) Problem {
	return Problem{
		Tenant:    "venue-a",
		Period:    venue.Period{Start: monday, End: monday.AddDate(0, 0, 7)},
		Employees: employees,
		Shifts:    shifts,
		Demand:    demand,
	}
}

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	sc, err := NewScheduler(nil)
	require.Nil(t, err)
	return sc
}

func assigned(sol *Solution) []string {
	res := make([]string, 0, len(sol.Assignments))
	for _, a := range sol.Assignments {
		res = append(res, fmt.Sprintf("%s:%s", a.Employee, a.Shift))
	}
	return res
}

func TestDemandSlotNeed(t *testing.T) {
	opt := NewDefaultOptions()
	testData := map[string]struct {
		covers   float64
		width    float64
		expected int
	}{
		"no demand":         {covers: 0, width: 10, expected: 0},
		"exact multiple":    {covers: 20, width: 0, expected: 1},
		"rounds up":         {covers: 30, width: 0, expected: 2},
		"narrow buffer":     {covers: 15, width: 20, expected: 2},
		"wide interval":     {covers: 1, width: 100, expected: 3},
		"negative interval": {covers: 30, width: -5, expected: 2},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			d := DemandSlot{Covers: td.covers, IntervalWidth: td.width}
			assert.Equal(t, td.expected, d.Need(opt))
		})
	}
}

func TestSolveCoverage(t *testing.T) {
	p := newProblem(
		[]Employee{{ID: "c", Wage: 25}, {ID: "a", Wage: 15}, {ID: "b", Wage: 20}},
		[]Shift{shift("mon-lunch", "mon-lunch", 0, 11, 15)},
		[]DemandSlot{slot(0, 11, 15, 40)},
	)
	sol, err := newScheduler(t).Solve(context.Background(), p)
	require.Nil(t, err)

	assert.Equal(t, []string{"a:mon-lunch", "b:mon-lunch"}, assigned(sol))
	assert.InDelta(t, 140.0, sol.Cost.Wages, 1e-9)
	assert.InDelta(t, 140.0, sol.Cost.Total, 1e-9)
	require.Len(t, sol.Coverage, 1)
	assert.Equal(t, 2, sol.Coverage[0].Need)
	assert.Equal(t, 0.0, sol.Coverage[0].Deficit)
	assert.InDelta(t, 120.0, sol.LowerBound, 1e-9)
	assert.Equal(t, metrics.StatusFeasible, sol.Status)
	assert.Equal(t, venue.Day(at(0, 11)), sol.Assignments[0].Date)
}

func TestSolveAvailability(t *testing.T) {
	midweek := Employee{ID: "mw", Wage: 10}
	anytime := Employee{ID: "any", Wage: 30}
	shifts := []Shift{
		shift("mon-lunch", "mon-lunch", 0, 11, 15),
		shift("thu-lunch", "thu-lunch", 3, 11, 15),
	}
	demand := []DemandSlot{slot(0, 11, 15, 10), slot(3, 11, 15, 10)}
	availability := map[venue.EmployeeID][]Window{
		"mw": {{Start: monday, End: monday.AddDate(0, 0, 3)}},
	}

	t.Run("alternative available", func(t *testing.T) {
		p := newProblem([]Employee{midweek, anytime}, shifts, demand)
		p.Availability = availability
		sol, err := newScheduler(t).Solve(context.Background(), p)
		require.Nil(t, err)
		assert.Equal(t, []string{"mw:mon-lunch", "any:thu-lunch"}, assigned(sol))
		assert.False(t, sol.Assigned("mw", "thu-lunch"))
	})

	t.Run("no alternative", func(t *testing.T) {
		p := newProblem([]Employee{midweek}, shifts, demand)
		p.Availability = availability
		sol, err := newScheduler(t).Solve(context.Background(), p)

		var infeasible *venue.SolverInfeasibleError
		require.True(t, errors.As(err, &infeasible))
		require.NotNil(t, sol)
		assert.Equal(t, metrics.StatusInfeasible, sol.Status)
		assert.False(t, sol.Assigned("mw", "thu-lunch"))
		assert.True(t, sol.Assigned("mw", "mon-lunch"))

		require.Len(t, infeasible.Violations, 1)
		v := infeasible.Violations[0]
		assert.Equal(t, ConstraintCoverage, v.Constraint)
		assert.Equal(t, at(3, 11).Format(time.RFC3339), v.Subject)
		assert.InDelta(t, 4.0, v.Magnitude, 1e-9)
	})
}

func TestSolveCoverageOverCost(t *testing.T) {
	testData := map[string]struct {
		employees []Employee
		shifts    []Shift
		demand    []DemandSlot
		expected  []string
		wages     float64
	}{
		"shift longer than slot": {
			employees: []Employee{{ID: "a", Wage: 30}},
			shifts:    []Shift{shift("mon-day", "mon-day", 0, 9, 17)},
			demand:    []DemandSlot{slot(0, 11, 12, 20)},
			expected:  []string{"a:mon-day"},
			wages:     240,
		},
		"wage above understaff penalty": {
			employees: []Employee{{ID: "a", Wage: 150}},
			shifts:    []Shift{shift("mon-lunch", "mon-lunch", 0, 11, 15)},
			demand:    []DemandSlot{slot(0, 11, 15, 20)},
			expected:  []string{"a:mon-lunch"},
			wages:     600,
		},
		"cheapest of expensive": {
			employees: []Employee{{ID: "a", Wage: 180}, {ID: "b", Wage: 120}},
			shifts:    []Shift{shift("mon-lunch", "mon-lunch", 0, 11, 15)},
			demand:    []DemandSlot{slot(0, 11, 15, 20)},
			expected:  []string{"b:mon-lunch"},
			wages:     480,
		},
		"expensive staff kept after cheaper run out": {
			employees: []Employee{{ID: "a", Wage: 20, MaxHours: 4}, {ID: "b", Wage: 200}},
			shifts: []Shift{
				shift("mon-lunch", "mon-lunch", 0, 11, 15),
				shift("tue-lunch", "tue-lunch", 1, 11, 15),
			},
			demand:   []DemandSlot{slot(0, 11, 12, 20), slot(1, 11, 12, 20)},
			expected: []string{"a:mon-lunch", "b:tue-lunch"},
			wages:    880,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			sol, err := newScheduler(t).Solve(context.Background(), newProblem(td.employees, td.shifts, td.demand))
			require.Nil(t, err)
			assert.Equal(t, td.expected, assigned(sol))
			assert.InDelta(t, td.wages, sol.Cost.Wages, 1e-9)
			assert.Empty(t, sol.Violations)
			assert.NotEqual(t, metrics.StatusInfeasible, sol.Status)
			for _, c := range sol.Coverage {
				assert.Equal(t, 0.0, c.Deficit)
			}
		})
	}
}

func TestSolveLocks(t *testing.T) {
	p := newProblem(
		[]Employee{{ID: "a", Wage: 15}, {ID: "b", Wage: 20}, {ID: "c", Wage: 25}},
		[]Shift{shift("mon-lunch", "mon-lunch", 0, 11, 15)},
		[]DemandSlot{slot(0, 11, 15, 40)},
	)
	// locks hold even outside availability
	p.Availability = map[venue.EmployeeID][]Window{"c": {{Start: at(1, 0), End: at(2, 0)}}}
	p.Locks = []Lock{{Employee: "c", Shift: "mon-lunch"}}

	sol, err := newScheduler(t).Solve(context.Background(), p)
	require.Nil(t, err)
	assert.Equal(t, []string{"a:mon-lunch", "c:mon-lunch"}, assigned(sol))
	for _, a := range sol.Assignments {
		assert.Equal(t, a.Employee == "c", a.Locked)
	}
	assert.InDelta(t, 160.0, sol.Cost.Wages, 1e-9)
}

func TestSolveLockBeyondMaxHours(t *testing.T) {
	p := newProblem(
		[]Employee{{ID: "a", Wage: 15, MaxHours: 2}},
		[]Shift{shift("mon-lunch", "mon-lunch", 0, 11, 15)},
		nil,
	)
	p.Locks = []Lock{{Employee: "a", Shift: "mon-lunch"}}

	sol, err := newScheduler(t).Solve(context.Background(), p)
	var infeasible *venue.SolverInfeasibleError
	require.True(t, errors.As(err, &infeasible))
	require.Len(t, infeasible.Violations, 1)
	assert.Equal(t, ConstraintLockMaxHours, infeasible.Violations[0].Constraint)
	assert.InDelta(t, 2.0, infeasible.Violations[0].Magnitude, 1e-9)
	assert.True(t, sol.Assigned("a", "mon-lunch"))
}

func TestSolveMaxHours(t *testing.T) {
	p := newProblem(
		[]Employee{{ID: "a", Wage: 10, MaxHours: 8}, {ID: "b", Wage: 20}},
		[]Shift{
			shift("mon-lunch", "mon-lunch", 0, 11, 15),
			shift("tue-lunch", "tue-lunch", 1, 11, 15),
			shift("wed-lunch", "wed-lunch", 2, 11, 15),
		},
		[]DemandSlot{slot(0, 11, 15, 10), slot(1, 11, 15, 10), slot(2, 11, 15, 10)},
	)
	sol, err := newScheduler(t).Solve(context.Background(), p)
	require.Nil(t, err)
	assert.Equal(t, []string{"a:mon-lunch", "a:tue-lunch", "b:wed-lunch"}, assigned(sol))
	assert.Equal(t, 8.0, sol.Hours["a"])
	assert.Equal(t, 4.0, sol.Hours["b"])
}

func TestSolveHardConstraints(t *testing.T) {
	testData := map[string]struct {
		employees []Employee
		shifts    []Shift
		demand    []DemandSlot
		conflicts []Conflict
		expected  []string
	}{
		"minimum rest between shifts": {
			employees: []Employee{{ID: "a", Wage: 10}, {ID: "b", Wage: 20}},
			shifts:    []Shift{shift("lunch", "", 0, 11, 15), shift("dinner", "", 0, 17, 21)},
			demand:    []DemandSlot{slot(0, 11, 15, 10), slot(0, 17, 21, 10)},
			expected:  []string{"a:lunch", "b:dinner"},
		},
		"conflicting pair": {
			employees: []Employee{{ID: "a", Wage: 10}, {ID: "b", Wage: 12}, {ID: "c", Wage: 30}},
			shifts:    []Shift{shift("lunch", "", 0, 11, 15)},
			demand:    []DemandSlot{slot(0, 11, 15, 40)},
			conflicts: []Conflict{{A: "a", B: "b"}},
			expected:  []string{"a:lunch", "c:lunch"},
		},
		"skill required": {
			employees: []Employee{{ID: "a", Wage: 10}, {ID: "b", Wage: 20, Skills: []string{"bar"}}},
			shifts:    []Shift{{ID: "bar", Start: at(0, 17), End: at(0, 23), Skill: "bar"}},
			demand:    []DemandSlot{slot(0, 17, 23, 10)},
			expected:  []string{"b:bar"},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			p := newProblem(td.employees, td.shifts, td.demand)
			p.Conflicts = td.conflicts
			sol, err := newScheduler(t).Solve(context.Background(), p)
			require.Nil(t, err)
			assert.Equal(t, td.expected, assigned(sol))
		})
	}
}

func TestSolveSoftPenalties(t *testing.T) {
	lunch := shift("mon-lunch", "mon-lunch", 0, 11, 15)
	testData := map[string]struct {
		employees []Employee
		previous  []ShiftAssignment
		expected  []string
	}{
		"ties break by employee": {
			employees: []Employee{{ID: "a", Wage: 10}, {ID: "b", Wage: 10}},
			expected:  []string{"a:mon-lunch"},
		},
		"keeps last week's template": {
			employees: []Employee{{ID: "a", Wage: 10}, {ID: "b", Wage: 10}},
			previous:  []ShiftAssignment{{Employee: "b", Shift: "last-mon-lunch", Template: "mon-lunch"}},
			expected:  []string{"b:mon-lunch"},
		},
		"preferred shift": {
			employees: []Employee{
				{ID: "a", Wage: 10},
				{ID: "b", Wage: 10, Preferences: map[string]float64{"mon-lunch": 1}},
			},
			expected: []string{"b:mon-lunch"},
		},
		"disliked shift": {
			employees: []Employee{
				{ID: "a", Wage: 10, Preferences: map[string]float64{"mon-lunch": -1}},
				{ID: "b", Wage: 10},
			},
			expected: []string{"b:mon-lunch"},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			p := newProblem(td.employees, []Shift{lunch}, []DemandSlot{slot(0, 11, 15, 10)})
			p.Previous = td.previous
			sol, err := newScheduler(t).Solve(context.Background(), p)
			require.Nil(t, err)
			assert.Equal(t, td.expected, assigned(sol))
		})
	}
}

func TestSolveWeekendFairness(t *testing.T) {
	p := newProblem(
		[]Employee{{ID: "a", Wage: 10}, {ID: "b", Wage: 10}},
		[]Shift{shift("sat", "sat-lunch", 5, 11, 15), shift("sun", "sun-lunch", 6, 11, 15)},
		[]DemandSlot{slot(5, 11, 15, 10), slot(6, 11, 15, 10)},
	)
	sol, err := newScheduler(t).Solve(context.Background(), p)
	require.Nil(t, err)
	assert.Equal(t, []string{"a:sat", "b:sun"}, assigned(sol))
	assert.InDelta(t, 0.0, sol.Cost.Fairness, 1e-9)
}

func TestSolveMinHours(t *testing.T) {
	p := newProblem(
		[]Employee{{ID: "a", Wage: 10, MinHours: 8}},
		[]Shift{shift("mon-lunch", "mon-lunch", 0, 11, 15)},
		nil,
	)
	sol, err := newScheduler(t).Solve(context.Background(), p)

	var infeasible *venue.SolverInfeasibleError
	require.True(t, errors.As(err, &infeasible))
	assert.True(t, sol.Assigned("a", "mon-lunch"))
	require.Len(t, infeasible.Violations, 1)
	assert.Equal(t, ConstraintMinHours, infeasible.Violations[0].Constraint)
	assert.Equal(t, "a", infeasible.Violations[0].Subject)
	assert.InDelta(t, 4.0, infeasible.Violations[0].Magnitude, 1e-9)
}

func weekProblem() Problem {
	var employees []Employee
	for i := 0; i < 6; i++ {
		employees = append(employees, Employee{
			ID:       venue.EmployeeID(fmt.Sprintf("emp-%d", i)),
			Wage:     14 + float64(i%3)*2,
			MaxHours: 24,
		})
	}
	var shifts []Shift
	var demand []DemandSlot
	for day := 0; day < 7; day++ {
		name := monday.AddDate(0, 0, day).Weekday().String()[:3]
		shifts = append(shifts,
			shift(venue.ShiftID(name+"-lunch"), name+"-lunch", day, 10, 15),
			shift(venue.ShiftID(name+"-dinner"), name+"-dinner", day, 17, 23),
		)
		demand = append(demand,
			DemandSlot{Window: Window{Start: at(day, 11), End: at(day, 14)}, Covers: 25 + float64(day)*3, IntervalWidth: 12},
			DemandSlot{Window: Window{Start: at(day, 18), End: at(day, 22)}, Covers: 35 + float64(day)*4, IntervalWidth: 20},
		)
	}
	return newProblem(employees, shifts, demand)
}

func TestSolveDeterministic(t *testing.T) {
	sc := newScheduler(t)
	first, err1 := sc.Solve(context.Background(), weekProblem())
	second, err2 := sc.Solve(context.Background(), weekProblem())

	assert.Equal(t, err1, err2)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Cost, second.Cost)
	assert.Equal(t, first.Status, second.Status)
}

func TestSolveInvariants(t *testing.T) {
	p := weekProblem()
	p.Locks = []Lock{{Employee: "emp-5", Shift: "Sat-dinner"}}
	sol, _ := newScheduler(t).Solve(context.Background(), p)
	require.NotNil(t, sol)

	byID := make(map[venue.ShiftID]Shift)
	for _, s := range p.Shifts {
		byID[s.ID] = s
	}
	worked := make(map[venue.EmployeeID][]Shift)
	for _, a := range sol.Assignments {
		worked[a.Employee] = append(worked[a.Employee], byID[a.Shift])
	}
	assert.True(t, sol.Assigned("emp-5", "Sat-dinner"))

	for e, shifts := range worked {
		hours := 0.0
		for i, a := range shifts {
			hours += a.Hours()
			for _, b := range shifts[i+1:] {
				assert.False(t, a.Overlaps(b), "%s works overlapping %s and %s", e, a.ID, b.ID)
				gap := b.Start.Sub(a.End)
				if a.Start.After(b.Start) {
					gap = a.Start.Sub(b.End)
				}
				assert.GreaterOrEqual(t, gap.Hours(), DefaultMinRest.Hours(), "%s rest between %s and %s", e, a.ID, b.ID)
			}
		}
		assert.LessOrEqual(t, hours, 24.0, e)
		assert.InDelta(t, hours, sol.Hours[e], 1e-9)
	}
}

func TestSolveCancelled(t *testing.T) {
	p := weekProblem()
	p.Locks = []Lock{{Employee: "emp-0", Shift: "Mon-lunch"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := newScheduler(t).Solve(ctx, p)

	var timeout *venue.SolverTimeoutError
	require.True(t, errors.As(err, &timeout))
	require.NotNil(t, sol)
	assert.Equal(t, metrics.StatusCancelled, sol.Status)
	assert.Equal(t, []string{"emp-0:Mon-lunch"}, assigned(sol))
	assert.Greater(t, timeout.Gap, 0.0)
}

func TestProblemValidate(t *testing.T) {
	base := func() Problem {
		return newProblem(
			[]Employee{{ID: "a", Wage: 10}},
			[]Shift{shift("lunch", "", 0, 11, 15)},
			nil,
		)
	}
	testData := map[string]struct {
		mutate func(p *Problem)
		err    error
	}{
		"valid":              {mutate: func(p *Problem) {}},
		"empty tenant":       {mutate: func(p *Problem) { p.Tenant = "" }, err: venue.ErrEmptyTenant},
		"duplicate employee": {mutate: func(p *Problem) { p.Employees = append(p.Employees, p.Employees[0]) }, err: ErrDuplicateEmployee},
		"duplicate shift":    {mutate: func(p *Problem) { p.Shifts = append(p.Shifts, p.Shifts[0]) }, err: ErrDuplicateShift},
		"inverted shift":     {mutate: func(p *Problem) { p.Shifts[0].End = p.Shifts[0].Start }, err: ErrInvalidShift},
		"min above max":      {mutate: func(p *Problem) { p.Employees[0].MinHours, p.Employees[0].MaxHours = 10, 5 }, err: ErrInvalidHours},
		"lock unknown shift": {mutate: func(p *Problem) { p.Locks = []Lock{{Employee: "a", Shift: "x"}} }, err: ErrUnknownShift},
		"conflict unknown":   {mutate: func(p *Problem) { p.Conflicts = []Conflict{{A: "a", B: "z"}} }, err: ErrUnknownEmployee},
		"availability unknown": {
			mutate: func(p *Problem) {
				p.Availability = map[venue.EmployeeID][]Window{"z": {{Start: at(0, 0), End: at(1, 0)}}}
			},
			err: ErrUnknownEmployee,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			p := base()
			td.mutate(&p)
			err := p.Validate()
			if td.err == nil {
				assert.Nil(t, err)
				return
			}
			assert.ErrorIs(t, err, td.err)
		})
	}
}

func TestSolvePreviousTenantMismatch(t *testing.T) {
	p := newProblem([]Employee{{ID: "a", Wage: 10}}, []Shift{shift("lunch", "", 0, 11, 15)}, nil)
	p.Previous = []ShiftAssignment{{Tenant: "venue-b", Employee: "a", Shift: "lunch"}}
	_, err := newScheduler(t).Solve(context.Background(), p)
	assert.ErrorIs(t, err, venue.ErrTenantMismatch)
}
