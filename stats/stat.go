// Package stats holds the count distributions and robust summary statistics shared by the
// forecasting, feature normalization and feedback components
package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptySample  = errors.New("empty sample")
	ErrTrimFraction = errors.New("trim fraction must be within [0, 0.5)")
)

// MADScale converts a median absolute deviation into a normal-consistent standard deviation
const MADScale = 1.4826

// DetectOutliers returns the indices of the values outside the percentile range widened by the
// tukey factor times the inner range
func DetectOutliers(y []float64, lowerPerc, upperPerc, tukeyFactor float64) []int {
	if len(y) == 0 {
		return nil
	}
	lowerPerc = math.Max(lowerPerc, 0.0)
	upperPerc = math.Min(upperPerc, 1.0)
	tukeyFactor = math.Max(tukeyFactor, 0.0)

	yCopy := sortedCopy(y)
	lower := stat.Quantile(lowerPerc, stat.Empirical, yCopy, nil)
	upper := stat.Quantile(upperPerc, stat.Empirical, yCopy, nil)
	innerRange := upper - lower
	lower -= innerRange * tukeyFactor
	upper += innerRange * tukeyFactor

	var outlierIdx []int
	for i := 0; i < len(y); i++ {
		if y[i] > upper || y[i] < lower {
			outlierIdx = append(outlierIdx, i)
		}
	}
	return outlierIdx
}

// Median returns the middle value of the sample
func Median(y []float64) (float64, error) {
	if len(y) == 0 {
		return 0, ErrEmptySample
	}
	s := sortedCopy(y)
	n := len(s)
	if n%2 == 1 {
		return s[n/2], nil
	}
	return (s[n/2-1] + s[n/2]) / 2, nil
}

// MAD returns the median absolute deviation around the median
func MAD(y []float64) (float64, error) {
	med, err := Median(y)
	if err != nil {
		return 0, err
	}
	dev := make([]float64, len(y))
	for i, v := range y {
		dev[i] = math.Abs(v - med)
	}
	return Median(dev)
}

// TrimmedMean drops the trim fraction of values from each tail before averaging
func TrimmedMean(y []float64, trim float64) (float64, error) {
	if len(y) == 0 {
		return 0, ErrEmptySample
	}
	if trim < 0 || trim >= 0.5 {
		return 0, ErrTrimFraction
	}
	s := sortedCopy(y)
	cut := int(math.Floor(float64(len(s)) * trim))
	s = s[cut : len(s)-cut]
	return stat.Mean(s, nil), nil
}

func sortedCopy(y []float64) []float64 {
	s := make([]float64, len(y))
	copy(s, y)
	sort.Float64s(s)
	return s
}
