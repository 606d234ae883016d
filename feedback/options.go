package feedback

import "errors"

const (
	DefaultRateSmoothing       = 0.3
	DefaultDispersionSmoothing = 0.2
	DefaultCoversSmoothing     = 0.2
	DefaultMinDispersion       = 0.01
	DefaultMaxDispersion       = 5.0
	DefaultMinCoversPerStaff   = 5.0
	DefaultMaxCoversPerStaff   = 60.0
	DefaultDriftVariance       = 0.002
	DefaultMinLogSD            = 0.05
	DefaultMaxLogSD            = 1.5
)

var (
	ErrInvalidSmoothing = errors.New("smoothing factors must be within (0, 1]")
	ErrInvalidBounds    = errors.New("lower bounds must be positive and not exceed upper bounds")
	ErrNegativeDrift    = errors.New("drift variance must be non-negative")
)

// Options configures how fast learned parameters follow observed outcomes
type Options struct {
	// RateSmoothing is the weight of the observed over forecast ratio in the log space update of an
	// item's prior mean rate
	RateSmoothing float64 `json:"rate_smoothing"`

	// DispersionSmoothing is the weight of the moment estimate of overdispersion from the observed
	// residuals
	DispersionSmoothing float64 `json:"dispersion_smoothing"`
	MinDispersion       float64 `json:"min_dispersion"`
	MaxDispersion       float64 `json:"max_dispersion"`

	CoversSmoothing   float64 `json:"covers_smoothing"`
	MinCoversPerStaff float64 `json:"min_covers_per_staff"`
	MaxCoversPerStaff float64 `json:"max_covers_per_staff"`

	// DriftVariance is the log rate variance a prior gains per day without data, capped at MaxLogSD.
	// Observed days shrink it down to MinLogSD.
	DriftVariance float64 `json:"drift_variance"`
	MinLogSD      float64 `json:"min_log_sd"`
	MaxLogSD      float64 `json:"max_log_sd"`
}

// NewDefaultOptions returns the default feedback options
func NewDefaultOptions() *Options {
	return &Options{
		RateSmoothing:       DefaultRateSmoothing,
		DispersionSmoothing: DefaultDispersionSmoothing,
		MinDispersion:       DefaultMinDispersion,
		MaxDispersion:       DefaultMaxDispersion,
		CoversSmoothing:     DefaultCoversSmoothing,
		MinCoversPerStaff:   DefaultMinCoversPerStaff,
		MaxCoversPerStaff:   DefaultMaxCoversPerStaff,
		DriftVariance:       DefaultDriftVariance,
		MinLogSD:            DefaultMinLogSD,
		MaxLogSD:            DefaultMaxLogSD,
	}
}

func validSmoothing(a float64) bool {
	return a > 0 && a <= 1
}

// Validate runs basic validation on feedback options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if !validSmoothing(o.RateSmoothing) || !validSmoothing(o.DispersionSmoothing) || !validSmoothing(o.CoversSmoothing) {
		return nil, ErrInvalidSmoothing
	}
	if o.MinDispersion <= 0 || o.MinDispersion > o.MaxDispersion {
		return nil, ErrInvalidBounds
	}
	if o.MinCoversPerStaff <= 0 || o.MinCoversPerStaff > o.MaxCoversPerStaff {
		return nil, ErrInvalidBounds
	}
	if o.DriftVariance < 0 {
		return nil, ErrNegativeDrift
	}
	if o.MinLogSD <= 0 || o.MinLogSD > o.MaxLogSD {
		return nil, ErrInvalidBounds
	}
	return o, nil
}
