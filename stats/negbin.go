package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrNegativeMean       = errors.New("negative mean")
	ErrNegativeDispersion = errors.New("negative dispersion")
	ErrQuantileRange      = errors.New("quantile must be within (0, 1)")
)

// poissonDispersion is the dispersion below which the negative binomial is treated as Poisson
const poissonDispersion = 1e-9

// NegBin is a negative binomial count distribution parameterized by its mean and dispersion phi so
// that Var = Mean + Phi*Mean^2. Phi of 0 reduces to a Poisson distribution.
type NegBin struct {
	Mean float64
	Phi  float64
}

// NewNegBin validates and returns a negative binomial distribution
func NewNegBin(mean, phi float64) (NegBin, error) {
	if mean < 0 || math.IsNaN(mean) {
		return NegBin{}, ErrNegativeMean
	}
	if phi < 0 || math.IsNaN(phi) {
		return NegBin{}, ErrNegativeDispersion
	}
	return NegBin{Mean: mean, Phi: phi}, nil
}

// Variance returns the distribution variance
func (nb NegBin) Variance() float64 {
	return nb.Mean + nb.Phi*nb.Mean*nb.Mean
}

// LogProb returns the log probability mass of k
func (nb NegBin) LogProb(k int) float64 {
	if k < 0 {
		return math.Inf(-1)
	}
	if nb.Mean == 0 {
		if k == 0 {
			return 0
		}
		return math.Inf(-1)
	}
	if nb.Phi < poissonDispersion {
		return distuv.Poisson{Lambda: nb.Mean}.LogProb(float64(k))
	}
	r := 1 / nb.Phi
	kf := float64(k)
	lgKR, _ := math.Lgamma(kf + r)
	lgR, _ := math.Lgamma(r)
	lgK1, _ := math.Lgamma(kf + 1)
	return lgKR - lgR - lgK1 + r*math.Log(r/(r+nb.Mean)) + kf*math.Log(nb.Mean/(r+nb.Mean))
}

// Quantile returns the smallest count k with CDF(k) >= q
func (nb NegBin) Quantile(q float64) (int, error) {
	if q <= 0 || q >= 1 {
		return 0, ErrQuantileRange
	}
	if nb.Mean == 0 {
		return 0, nil
	}

	// walk the mass function with the ratio recurrence from k = 0
	var mass float64
	var ratio func(k int) float64
	if nb.Phi < poissonDispersion {
		mass = math.Exp(-nb.Mean)
		ratio = func(k int) float64 { return nb.Mean / float64(k+1) }
	} else {
		r := 1 / nb.Phi
		p := r / (r + nb.Mean)
		mass = math.Exp(r * math.Log(p))
		ratio = func(k int) float64 { return (float64(k) + r) / float64(k+1) * (1 - p) }
	}

	// the starting mass underflows for very large means, fall back to the log space walk
	if mass == 0 {
		return nb.quantileLog(q), nil
	}

	limit := nb.searchLimit()
	cdf := mass
	k := 0
	for cdf < q && k < limit {
		mass *= ratio(k)
		k++
		cdf += mass
	}
	return k, nil
}

func (nb NegBin) quantileLog(q float64) int {
	limit := nb.searchLimit()
	cdf := 0.0
	for k := 0; k < limit; k++ {
		cdf += math.Exp(nb.LogProb(k))
		if cdf >= q {
			return k
		}
	}
	return limit
}

func (nb NegBin) searchLimit() int {
	return int(nb.Mean+60*math.Sqrt(nb.Variance())) + 100
}

// Interval returns the central interval holding the requested probability mass, e.g. 0.95
func (nb NegBin) Interval(mass float64) (float64, float64, error) {
	tail := (1 - mass) / 2
	lo, err := nb.Quantile(tail)
	if err != nil {
		return 0, 0, err
	}
	hi, err := nb.Quantile(1 - tail)
	if err != nil {
		return 0, 0, err
	}
	return float64(lo), float64(hi), nil
}
