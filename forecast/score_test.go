package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewScores(t *testing.T) {
	scores, err := NewScores([]float64{1, 2, 3, math.NaN()}, []float64{1, 2, 4, 5})
	assert.Nil(t, err)
	assert.InDelta(t, 0.25, scores.MSE, 1e-9)

	_, err = NewScores([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrResLenMismatch)
}

func TestCoverage(t *testing.T) {
	testData := map[string]struct {
		low, high, actual []float64
		expected          float64
		err               error
	}{
		"empty": {expected: 0},
		"all covered": {
			low:      []float64{0, 1, 2},
			high:     []float64{5, 6, 7},
			actual:   []float64{0, 6, 3},
			expected: 1.0,
		},
		"half covered": {
			low:      []float64{0, 1, 2, 3},
			high:     []float64{1, 2, 3, 4},
			actual:   []float64{1, 3, 2, 9},
			expected: 0.5,
		},
		"length mismatch": {
			low:    []float64{0},
			high:   []float64{1, 2},
			actual: []float64{1, 2},
			err:    ErrResLenMismatch,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res, err := Coverage(td.low, td.high, td.actual)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			assert.Nil(t, err)
			assert.InDelta(t, td.expected, res, 1e-9)
		})
	}
}
