package labor

import (
	"errors"
	"time"
)

const (
	DefaultCoversPerStaff    = 20.0
	DefaultBufferRate        = 0.25
	DefaultMinRest           = 10 * time.Hour
	DefaultUnderstaffPenalty = 100.0
	DefaultPreferenceWeight  = 5.0
	DefaultFairnessWeight    = 10.0
	DefaultChurnWeight       = 2.0
	DefaultTimeBudget        = 30 * time.Second
	DefaultMaxIterations     = 10000
)

var (
	ErrNonPositiveCoversPerStaff = errors.New("covers per staff must be positive")
	ErrNegativeWeight            = errors.New("labor weights and budgets must be non-negative")
)

// Options configures the staffing need derived from demand and the weights of the soft penalties
type Options struct {
	// CoversPerStaff is the number of covers one staff member serves in a slot
	CoversPerStaff float64 `json:"covers_per_staff"`

	// BufferRate converts forecast interval width in covers into extra staff, rounded up
	BufferRate float64 `json:"buffer_rate"`

	MinRest time.Duration `json:"min_rest"`

	// UnderstaffPenalty is the cost per staff hour of unmet coverage used to drive the search.
	// Coverage is still a hard constraint and any shortfall left makes the solve infeasible.
	UnderstaffPenalty float64 `json:"understaff_penalty"`
	PreferenceWeight  float64 `json:"preference_weight"`
	FairnessWeight    float64 `json:"fairness_weight"`
	ChurnWeight       float64 `json:"churn_weight"`

	TimeBudget    time.Duration `json:"time_budget"`
	MaxIterations int           `json:"max_iterations"`
}

// NewDefaultOptions returns the default labor scheduling options
func NewDefaultOptions() *Options {
	return &Options{
		CoversPerStaff:    DefaultCoversPerStaff,
		BufferRate:        DefaultBufferRate,
		MinRest:           DefaultMinRest,
		UnderstaffPenalty: DefaultUnderstaffPenalty,
		PreferenceWeight:  DefaultPreferenceWeight,
		FairnessWeight:    DefaultFairnessWeight,
		ChurnWeight:       DefaultChurnWeight,
		TimeBudget:        DefaultTimeBudget,
		MaxIterations:     DefaultMaxIterations,
	}
}

// Validate runs basic validation on labor options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.CoversPerStaff <= 0 {
		return nil, ErrNonPositiveCoversPerStaff
	}
	if o.BufferRate < 0 || o.MinRest < 0 || o.UnderstaffPenalty < 0 || o.PreferenceWeight < 0 ||
		o.FairnessWeight < 0 || o.ChurnWeight < 0 || o.TimeBudget < 0 || o.MaxIterations < 0 {
		return nil, ErrNegativeWeight
	}
	return o, nil
}
