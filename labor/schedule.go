package labor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aouyang1/go-demandcast/venue"
)

var (
	ErrInvalidTransition = errors.New("invalid schedule state transition")
	ErrStaleSolution     = errors.New("schedule locks are not reflected in the solution, re-solve first")
)

// State is the lifecycle stage of a schedule
type State int

const (
	StateDraft State = iota
	StateSolved
	StateManagerReviewed
	StateLockedPartial
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateSolved:
		return "solved"
	case StateManagerReviewed:
		return "manager_reviewed"
	case StateLockedPartial:
		return "locked_partial"
	case StatePublished:
		return "published"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition records a state change of a schedule
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Schedule tracks one tenant period through solve, manager review, partial locking and
// publication. Every lock added by a manager is kept for all later solves.
type Schedule struct {
	mu sync.Mutex

	scheduler *Scheduler
	problem   Problem
	state     State
	solution  *Solution
	history   []Transition
	nowFunc   func() time.Time
}

// NewSchedule starts a draft schedule for the problem
func NewSchedule(scheduler *Scheduler, problem Problem) *Schedule {
	return &Schedule{
		scheduler: scheduler,
		problem:   problem,
		state:     StateDraft,
		nowFunc:   time.Now,
	}
}

func (s *Schedule) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Schedule) Solution() *Solution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.solution
}

// Locks returns a copy of the locks the next solve will honor
func (s *Schedule) Locks() []Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Lock, len(s.problem.Locks))
	copy(res, s.problem.Locks)
	return res
}

func (s *Schedule) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Transition, len(s.history))
	copy(res, s.history)
	return res
}

func (s *Schedule) transition(to State) {
	s.history = append(s.history, Transition{From: s.state, To: to, At: s.nowFunc()})
	s.state = to
}

func (s *Schedule) invalid(action string) error {
	return fmt.Errorf("%s from %s, %w", action, s.state, ErrInvalidTransition)
}

// Solve runs the scheduler with every lock so far. Allowed from any state before publication. The
// schedule moves to solved when the scheduler returns a solution without hard violations; a
// timed out incumbent counts as solved.
func (s *Schedule) Solve(ctx context.Context) (*Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePublished {
		return nil, s.invalid("solve")
	}
	sol, err := s.scheduler.Solve(ctx, s.problem)
	if sol == nil {
		return nil, err
	}
	var infeasible *venue.SolverInfeasibleError
	if errors.As(err, &infeasible) {
		return sol, err
	}
	s.solution = sol
	s.transition(StateSolved)
	return sol, err
}

// Review marks a solved schedule as reviewed by the manager
func (s *Schedule) Review() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSolved {
		return s.invalid("review")
	}
	s.transition(StateManagerReviewed)
	return nil
}

// Lock adds manager overrides to a reviewed schedule. Locks already present are ignored.
func (s *Schedule) Lock(locks ...Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateManagerReviewed && s.state != StateLockedPartial {
		return s.invalid("lock")
	}
	next := s.problem
	next.Locks = make([]Lock, len(s.problem.Locks), len(s.problem.Locks)+len(locks))
	copy(next.Locks, s.problem.Locks)
	seen := make(map[Lock]struct{}, len(next.Locks))
	for _, l := range next.Locks {
		seen[l] = struct{}{}
	}
	for _, l := range locks {
		if _, exists := seen[l]; exists {
			continue
		}
		seen[l] = struct{}{}
		next.Locks = append(next.Locks, l)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.problem = next
	s.transition(StateLockedPartial)
	return nil
}

// Publish finalizes the schedule. A partially locked schedule publishes only when every lock is
// already part of the current solution.
func (s *Schedule) Publish() ([]ShiftAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateSolved, StateManagerReviewed:
	case StateLockedPartial:
		for _, l := range s.problem.Locks {
			if !s.solution.Assigned(l.Employee, l.Shift) {
				return nil, fmt.Errorf("lock of %s on %s, %w", l.Employee, l.Shift, ErrStaleSolution)
			}
		}
	default:
		return nil, s.invalid("publish")
	}
	s.transition(StatePublished)
	res := make([]ShiftAssignment, len(s.solution.Assignments))
	copy(res, s.solution.Assignments)
	return res, nil
}
