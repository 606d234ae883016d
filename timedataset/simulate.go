package timedataset

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/aouyang1/go-demandcast/stats"
	"gonum.org/v1/gonum/floats"
)

// GenerateT returns n points spaced by interval ending one interval before the day of nowFunc
func GenerateT(n int, interval time.Duration, nowFunc func() time.Time) []time.Time {
	t := make([]time.Time, 0, n)
	ct := nowFunc().UTC().Truncate(24 * time.Hour).Add(-time.Duration(n) * interval)
	for i := 0; i < n; i++ {
		t = append(t, ct.Add(interval*time.Duration(i)))
	}
	return t
}

type Series []float64

func (s Series) Add(src Series) Series {
	floats.Add(s, src)
	return s
}

// Exp converts a log rate series into a rate series in place
func (s Series) Exp() Series {
	for i := range s {
		s[i] = math.Exp(s[i])
	}
	return s
}

func (s Series) SetConst(t []time.Time, val float64, start, end time.Time) Series {
	n := len(s)
	for i := 0; i < n; i++ {
		if (t[i].After(start) || t[i].Equal(start)) && t[i].Before(end) {
			s[i] = val
		}
	}
	return s
}

func (s Series) MaskWithWeekend(t []time.Time) Series {
	n := len(s)
	for i := 0; i < n; i++ {
		switch t[i].Weekday() {
		case time.Saturday, time.Sunday:
			continue
		default:
			s[i] = 0.0
		}
	}
	return s
}

func (s Series) MaskWithTimeRange(start, end time.Time, t []time.Time) Series {
	n := len(s)
	for i := 0; i < n; i++ {
		if t[i].Before(start) || t[i].After(end) {
			s[i] = 0.0
		}
	}
	return s
}

func GenerateConstY(n int, val float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, val)
	}
	return Series(y)
}

func GenerateWaveY(t []time.Time, amp, periodSec, order, timeOffset float64) Series {
	n := len(t)
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		val := amp * math.Sin(2.0*math.Pi*order/periodSec*(float64(t[i].Unix())+timeOffset))
		y = append(y, val)
	}
	return Series(y)
}

// GenerateWeekdayY assigns the per weekday value, indexed by time.Weekday, to each point
func GenerateWeekdayY(t []time.Time, byWeekday [7]float64) Series {
	y := make([]float64, len(t))
	for i, tPnt := range t {
		y[i] = byWeekday[tPnt.Weekday()]
	}
	return Series(y)
}

// GenerateNegBinCounts draws one negative binomial count per rate with dispersion phi. Draws are
// made by inverting the distribution with a uniform stream seeded from the seed string so the
// same inputs always simulate the same demand.
func GenerateNegBinCounts(rate Series, phi float64, seed string) (Series, error) {
	h := fnv.New64a()
	h.Write([]byte(seed))
	rng := rand.New(rand.NewPCG(h.Sum64(), 0x9e3779b97f4a7c15))

	y := make([]float64, len(rate))
	for i, r := range rate {
		nb, err := stats.NewNegBin(math.Max(r, 0), phi)
		if err != nil {
			return nil, err
		}
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		k, err := nb.Quantile(u)
		if err != nil {
			return nil, err
		}
		y[i] = float64(k)
	}
	return Series(y), nil
}
