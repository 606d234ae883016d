// Package labor assigns employees to shifts so demand driven coverage is met at least cost under
// availability, contract, rest, skill, lock and conflict constraints, and tracks a schedule
// through review to publication.
package labor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aouyang1/go-demandcast/venue"
)

var (
	ErrInvalidShift      = errors.New("shift end must be after start")
	ErrInvalidWindow     = errors.New("window end must be after start")
	ErrDuplicateShift    = errors.New("duplicate shift")
	ErrDuplicateEmployee = errors.New("duplicate employee")
	ErrUnknownEmployee   = errors.New("unknown employee")
	ErrUnknownShift      = errors.New("unknown shift")
	ErrInvalidHours      = errors.New("employee hours must satisfy 0 <= min <= max")
)

// Employee is a staff member with contracted weekly hours. MaxHours of zero means no limit.
type Employee struct {
	ID       venue.EmployeeID `json:"employee_id"`
	Wage     float64          `json:"wage"`
	Skills   []string         `json:"skills"`
	MinHours float64          `json:"min_hours"`
	MaxHours float64          `json:"max_hours"`

	// Preferences scores shifts by template, positive for wanted and negative for unwanted
	Preferences map[string]float64 `json:"preferences,omitempty"`
}

// HasSkill reports whether the employee holds the skill. The empty skill is held by everyone.
func (e Employee) HasSkill(skill string) bool {
	if skill == "" {
		return true
	}
	for _, s := range e.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// Shift is a concrete shift instance. Template identifies the recurring shift across weeks, e.g.
// "thu-dinner", and is used for preferences and churn.
type Shift struct {
	ID       venue.ShiftID `json:"shift_id"`
	Template string        `json:"template"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Skill    string        `json:"skill,omitempty"`
}

// Hours returns the shift length in hours
func (s Shift) Hours() float64 {
	return s.End.Sub(s.Start).Hours()
}

// Overlaps reports whether the two shifts share any time
func (s Shift) Overlaps(o Shift) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Weekend reports whether the shift starts on a Saturday or Sunday
func (s Shift) Weekend() bool {
	wd := s.Start.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Window is a span of time
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the shift lies within the window
func (w Window) Contains(s Shift) bool {
	return !s.Start.Before(w.Start) && !s.End.After(w.End)
}

// Overlap returns the hours the shift overlaps the window
func (w Window) Overlap(s Shift) float64 {
	start := s.Start
	if w.Start.After(start) {
		start = w.Start
	}
	end := s.End
	if w.End.Before(end) {
		end = w.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours()
}

// DemandSlot is the forecast of covers over a time slot. IntervalWidth is the width of the
// forecast prediction interval in covers.
type DemandSlot struct {
	Window
	Covers        float64 `json:"covers"`
	IntervalWidth float64 `json:"interval_width"`
}

// Need is the staff required in the slot, ceil(covers / covers_per_staff) plus a buffer growing
// with the forecast interval width
func (d DemandSlot) Need(opt *Options) int {
	if d.Covers <= 0 {
		return 0
	}
	base := math.Ceil(d.Covers/opt.CoversPerStaff - 1e-9)
	buffer := math.Ceil(opt.BufferRate*math.Max(d.IntervalWidth, 0)/opt.CoversPerStaff - 1e-9)
	return int(base + math.Max(buffer, 0))
}

// Lock fixes an employee on a shift. Locks come from manager overrides and are never altered.
type Lock struct {
	Employee venue.EmployeeID `json:"employee_id"`
	Shift    venue.ShiftID    `json:"shift_id"`
}

// Conflict marks two employees that must not work overlapping shifts together
type Conflict struct {
	A venue.EmployeeID `json:"a"`
	B venue.EmployeeID `json:"b"`
}

// ShiftAssignment is an employee working a shift
type ShiftAssignment struct {
	Tenant   venue.TenantID   `json:"tenant"`
	Employee venue.EmployeeID `json:"employee_id"`
	Shift    venue.ShiftID    `json:"shift_id"`
	Template string           `json:"template"`
	Date     time.Time        `json:"date"`
	Locked   bool             `json:"locked"`
}

// Problem is a scheduling problem of one tenant period
type Problem struct {
	Tenant       venue.TenantID                `json:"tenant"`
	Period       venue.Period                  `json:"period"`
	Employees    []Employee                    `json:"employees"`
	Shifts       []Shift                       `json:"shifts"`
	Availability map[venue.EmployeeID][]Window `json:"availability"`
	Demand       []DemandSlot                  `json:"demand"`
	Locks        []Lock                        `json:"locks"`
	Conflicts    []Conflict                    `json:"conflicts"`
	Previous     []ShiftAssignment             `json:"previous"`
}

// Validate checks the problem is well formed
func (p Problem) Validate() error {
	if err := p.Tenant.Validate(); err != nil {
		return err
	}
	employees := make(map[venue.EmployeeID]struct{}, len(p.Employees))
	for _, e := range p.Employees {
		if _, exists := employees[e.ID]; exists {
			return fmt.Errorf("employee %s, %w", e.ID, ErrDuplicateEmployee)
		}
		if e.MinHours < 0 || e.MaxHours < 0 || (e.MaxHours > 0 && e.MinHours > e.MaxHours) {
			return fmt.Errorf("employee %s, %w", e.ID, ErrInvalidHours)
		}
		employees[e.ID] = struct{}{}
	}
	shifts := make(map[venue.ShiftID]struct{}, len(p.Shifts))
	for _, s := range p.Shifts {
		if _, exists := shifts[s.ID]; exists {
			return fmt.Errorf("shift %s, %w", s.ID, ErrDuplicateShift)
		}
		if !s.End.After(s.Start) {
			return fmt.Errorf("shift %s, %w", s.ID, ErrInvalidShift)
		}
		shifts[s.ID] = struct{}{}
	}
	for e, windows := range p.Availability {
		if _, exists := employees[e]; !exists {
			return fmt.Errorf("availability of %s, %w", e, ErrUnknownEmployee)
		}
		for _, w := range windows {
			if !w.End.After(w.Start) {
				return fmt.Errorf("availability of %s, %w", e, ErrInvalidWindow)
			}
		}
	}
	for _, l := range p.Locks {
		if _, exists := employees[l.Employee]; !exists {
			return fmt.Errorf("lock of %s, %w", l.Employee, ErrUnknownEmployee)
		}
		if _, exists := shifts[l.Shift]; !exists {
			return fmt.Errorf("lock on %s, %w", l.Shift, ErrUnknownShift)
		}
	}
	for _, c := range p.Conflicts {
		for _, e := range []venue.EmployeeID{c.A, c.B} {
			if _, exists := employees[e]; !exists {
				return fmt.Errorf("conflict with %s, %w", e, ErrUnknownEmployee)
			}
		}
	}
	for _, d := range p.Demand {
		if !d.End.After(d.Start) {
			return fmt.Errorf("demand slot at %s, %w", d.Start, ErrInvalidWindow)
		}
	}
	return nil
}
