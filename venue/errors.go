package venue

import (
	"fmt"
	"strings"
)

// InsufficientDataError signals too little history to fit a tenant specific model. Callers degrade
// to priors rather than fail.
type InsufficientDataError struct {
	Tenant   TenantID
	Item     ItemID
	Days     int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for tenant %s item %s: %d days of history, need %d", e.Tenant, e.Item, e.Days, e.Required)
}

// Violation is a single unsatisfied hard constraint and how far it is from being met
type Violation struct {
	Constraint string  `json:"constraint"`
	Subject    string  `json:"subject"`
	Magnitude  float64 `json:"magnitude"`
	Detail     string  `json:"detail,omitempty"`
}

func (v Violation) String() string {
	s := fmt.Sprintf("%s[%s] short by %.2f", v.Constraint, v.Subject, v.Magnitude)
	if v.Detail != "" {
		s += " (" + v.Detail + ")"
	}
	return s
}

// SolverInfeasibleError is returned when the hard constraints of a solve cannot all be met. The
// violations list every constraint still unmet by the best assignment found.
type SolverInfeasibleError struct {
	Solver     string
	Tenant     TenantID
	Violations []Violation
}

func (e *SolverInfeasibleError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%s solve infeasible for tenant %s: %s", e.Solver, e.Tenant, strings.Join(parts, "; "))
}

// SolverTimeoutError accompanies an incumbent solution returned when a solve ran out of time.
// Gap is the relative distance between the incumbent objective and the best known bound.
type SolverTimeoutError struct {
	Solver string
	Tenant TenantID
	Gap    float64
}

func (e *SolverTimeoutError) Error() string {
	return fmt.Sprintf("%s solve for tenant %s timed out with optimality gap %.4f", e.Solver, e.Tenant, e.Gap)
}

// DataQualityError flags a derived record built on missing or inconsistent source data
type DataQualityError struct {
	Tenant TenantID
	Item   ItemID
	Issues []string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality issues for tenant %s item %s: %s", e.Tenant, e.Item, strings.Join(e.Issues, ", "))
}

// RegimeChangeWarning is raised when an estimate's observed variability grows beyond what its
// posterior predicts. It asks for a manual review and never blocks an update.
type RegimeChangeWarning struct {
	Tenant TenantID
	Key    string
	Ratio  float64
}

func (e *RegimeChangeWarning) Error() string {
	return fmt.Sprintf("possible regime change for tenant %s key %s: observed variance %.2fx predicted", e.Tenant, e.Key, e.Ratio)
}
