// Package event builds the calendar of holidays and local events a venue's demand reacts to
package event

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

var (
	ErrStartAfterEnd = errors.New("event start time is after end time")
	ErrUnsetTime     = errors.New("unset event start or end time")
	ErrNoEventName   = errors.New("no event name")
)

// Event represents a time span [Start, End) to model separately
type Event struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewEvent(name string, start, end time.Time) Event {
	return Event{
		Name:  name,
		Start: start,
		End:   end,
	}
}

func (e *Event) Valid() error {
	if e.Start.IsZero() || e.End.IsZero() {
		return ErrUnsetTime
	}
	if e.Start.After(e.End) {
		return ErrStartAfterEnd
	}
	if e.Name == "" {
		return ErrNoEventName
	}
	return nil
}

// Active reports whether the event covers any part of the day starting at t
func (e Event) Active(t time.Time) bool {
	dayEnd := t.Add(24 * time.Hour)
	return e.Start.Before(dayEnd) && e.End.After(t)
}

func Christmas(start, end time.Time, durBefore, durAfter time.Duration) []Event {
	return Holiday(us.ChristmasDay, start, end, durBefore, durAfter)
}

func Thanksgiving(start, end time.Time, durBefore, durAfter time.Duration) []Event {
	return Holiday(us.ThanksgivingDay, start, end, durBefore, durAfter)
}

// Holiday expands the observed dates of the holiday between start and end inclusive into day long
// events, widened by durBefore and durAfter
func Holiday(hol *cal.Holiday, start, end time.Time, durBefore, durAfter time.Duration) []Event {
	startLoc := start.Location()

	events := []Event{}
	for i := start.Year(); i <= end.Year(); i++ {
		_, observed := hol.Calc(i)
		_, offset := observed.Zone()
		_, startOffset := start.Zone()

		observed = observed.Add(time.Duration(offset) * time.Second).In(startLoc).Add(time.Duration(-startOffset) * time.Second)

		if (observed.After(start) || observed.Equal(start)) && (observed.Before(end) || observed.Equal(end)) {
			events = append(events, Event{
				Name:  strings.ReplaceAll(fmt.Sprintf("%s_%d", hol.Name, i), " ", "_"),
				Start: observed.Add(-durBefore),
				End:   observed.Add(24 * time.Hour).Add(durAfter),
			})
		}
	}
	return events
}

// USHolidays are the federal holidays with a well known effect on restaurant traffic
var USHolidays = []*cal.Holiday{
	us.NewYear,
	us.MemorialDay,
	us.IndependenceDay,
	us.LaborDay,
	us.ThanksgivingDay,
	us.ChristmasDay,
}

// Calendar combines recurring holidays with one off local events of a single venue
type Calendar struct {
	holidays []*cal.Holiday
	events   []Event
}

// NewCalendar returns a calendar of the holidays and the valid local events. Invalid events are
// returned as an error alongside the calendar built from the rest.
func NewCalendar(holidays []*cal.Holiday, events ...Event) (*Calendar, error) {
	c := &Calendar{holidays: holidays}
	var errs []error
	for _, e := range events {
		if err := e.Valid(); err != nil {
			errs = append(errs, fmt.Errorf("event %q, %w", e.Name, err))
			continue
		}
		c.events = append(c.events, e)
	}
	sort.Slice(c.events, func(i, j int) bool {
		return c.events[i].Start.Before(c.events[j].Start)
	})
	return c, errors.Join(errs...)
}

// IsHoliday reports whether day, truncated to midnight UTC, is the observed date of any holiday
func (c *Calendar) IsHoliday(day time.Time) bool {
	if c == nil {
		return false
	}
	day = day.UTC().Truncate(24 * time.Hour)
	for _, hol := range c.holidays {
		if len(Holiday(hol, day, day, 0, 0)) > 0 {
			return true
		}
	}
	return false
}

// LocalEvents returns the names of the local events active on the day
func (c *Calendar) LocalEvents(day time.Time) []string {
	if c == nil {
		return nil
	}
	day = day.UTC().Truncate(24 * time.Hour)
	var names []string
	for _, e := range c.events {
		if e.Active(day) {
			names = append(names, e.Name)
		}
	}
	return names
}

// Events returns every holiday occurrence and local event overlapping [start, end]
func (c *Calendar) Events(start, end time.Time) []Event {
	if c == nil {
		return nil
	}
	var res []Event
	for _, hol := range c.holidays {
		res = append(res, Holiday(hol, start, end, 0, 0)...)
	}
	for _, e := range c.events {
		if e.Start.After(end) || !e.End.After(start) {
			continue
		}
		res = append(res, e)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Start.Before(res[j].Start)
	})
	return res
}
