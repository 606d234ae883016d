package labor

import (
	"context"
	"errors"
	"testing"

	"github.com/aouyang1/go-demandcast/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lunchProblem() Problem {
	return newProblem(
		[]Employee{{ID: "a", Wage: 15}, {ID: "b", Wage: 20}, {ID: "c", Wage: 25}},
		[]Shift{shift("mon-lunch", "mon-lunch", 0, 11, 15)},
		[]DemandSlot{slot(0, 11, 15, 40)},
	)
}

func TestScheduleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSchedule(newScheduler(t), lunchProblem())
	assert.Equal(t, StateDraft, s.State())

	assert.ErrorIs(t, s.Review(), ErrInvalidTransition)
	_, err := s.Publish()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	sol, err := s.Solve(ctx)
	require.Nil(t, err)
	assert.Equal(t, StateSolved, s.State())
	assert.False(t, sol.Assigned("c", "mon-lunch"))

	assert.ErrorIs(t, s.Lock(Lock{Employee: "c", Shift: "mon-lunch"}), ErrInvalidTransition)
	require.Nil(t, s.Review())
	assert.Equal(t, StateManagerReviewed, s.State())

	require.Nil(t, s.Lock(Lock{Employee: "c", Shift: "mon-lunch"}))
	require.Nil(t, s.Lock(Lock{Employee: "c", Shift: "mon-lunch"}))
	assert.Equal(t, StateLockedPartial, s.State())
	assert.Len(t, s.Locks(), 1)

	_, err = s.Publish()
	assert.ErrorIs(t, err, ErrStaleSolution)

	sol, err = s.Solve(ctx)
	require.Nil(t, err)
	assert.Equal(t, StateSolved, s.State())
	assert.True(t, sol.Assigned("c", "mon-lunch"))
	assert.True(t, sol.Assigned("a", "mon-lunch"))
	assert.False(t, sol.Assigned("b", "mon-lunch"))

	published, err := s.Publish()
	require.Nil(t, err)
	assert.Equal(t, StatePublished, s.State())
	assert.Len(t, published, 2)

	_, err = s.Solve(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var states []State
	for _, tr := range s.History() {
		states = append(states, tr.To)
	}
	expected := []State{StateSolved, StateManagerReviewed, StateLockedPartial, StateLockedPartial, StateSolved, StatePublished}
	assert.Equal(t, expected, states)
}

func TestScheduleLockedPublish(t *testing.T) {
	s := NewSchedule(newScheduler(t), lunchProblem())
	_, err := s.Solve(context.Background())
	require.Nil(t, err)
	require.Nil(t, s.Review())

	// locking an assignment the solution already holds needs no re-solve
	require.Nil(t, s.Lock(Lock{Employee: "a", Shift: "mon-lunch"}))
	published, err := s.Publish()
	require.Nil(t, err)
	assert.Len(t, published, 2)
}

func TestScheduleInvalidLock(t *testing.T) {
	s := NewSchedule(newScheduler(t), lunchProblem())
	_, err := s.Solve(context.Background())
	require.Nil(t, err)
	require.Nil(t, s.Review())

	assert.ErrorIs(t, s.Lock(Lock{Employee: "z", Shift: "mon-lunch"}), ErrUnknownEmployee)
	assert.Equal(t, StateManagerReviewed, s.State())
	assert.Empty(t, s.Locks())
}

func TestScheduleInfeasibleStaysDraft(t *testing.T) {
	p := lunchProblem()
	p.Employees = p.Employees[:1]
	s := NewSchedule(newScheduler(t), p)

	sol, err := s.Solve(context.Background())
	var infeasible *venue.SolverInfeasibleError
	require.True(t, errors.As(err, &infeasible))
	require.NotNil(t, sol)
	assert.Equal(t, StateDraft, s.State())
	assert.Nil(t, s.Solution())
}

func TestStateString(t *testing.T) {
	testData := map[string]struct {
		state    State
		expected string
	}{
		"draft":     {StateDraft, "draft"},
		"solved":    {StateSolved, "solved"},
		"reviewed":  {StateManagerReviewed, "manager_reviewed"},
		"locked":    {StateLockedPartial, "locked_partial"},
		"published": {StatePublished, "published"},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.expected, td.state.String())
		})
	}
}
