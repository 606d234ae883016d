// Package venue holds the keys and shared value types every component of the demand forecasting
// and decision core partitions by. A tenant is a single venue and no value crosses tenants.
package venue

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyTenant       = errors.New("empty tenant id")
	ErrTenantMismatch    = errors.New("record belongs to a different tenant")
	ErrInvalidPeriod     = errors.New("period start is not before end")
	ErrUnknownConfidence = errors.New("unknown confidence level")
)

type (
	TenantID   string
	ItemID     string
	CategoryID string
	EmployeeID string
	ShiftID    string
)

// Validate checks that the tenant id is set
func (t TenantID) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return ErrEmptyTenant
	}
	return nil
}

// Confidence is the coarse trust level attached to every estimate exposed by the core
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	}
	return fmt.Sprintf("confidence(%d)", int(c))
}

// MarshalText encodes the confidence as its lower case name
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a lower case confidence name
func (c *Confidence) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "low":
		*c = ConfidenceLow
	case "medium":
		*c = ConfidenceMedium
	case "high":
		*c = ConfidenceHigh
	default:
		return fmt.Errorf("%q, %w", string(text), ErrUnknownConfidence)
	}
	return nil
}

// Min returns the lower of the two confidence levels
func (c Confidence) Min(o Confidence) Confidence {
	if o < c {
		return o
	}
	return c
}

// Period is a half open reporting or scheduling window [Start, End)
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod returns a validated period
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate returns an error if the period is empty or inverted
func (p Period) Validate() error {
	if !p.Start.Before(p.End) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains reports whether t falls inside the period
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Days returns the number of whole days covered by the period
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours() / 24)
}

// Key is a stable string representation used to serialize work per tenant and period
func (p Period) Key() string {
	return p.Start.UTC().Format(time.DateOnly) + "/" + p.End.UTC().Format(time.DateOnly)
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
