package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectOutliers(t *testing.T) {
	testData := map[string]struct {
		y        []float64
		expected []int
	}{
		"empty":      {nil, nil},
		"no outlier": {[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, nil},
		"spike": {
			[]float64{10, 11, 9, 10, 12, 11, 10, 95, 9, 10, 11, 10},
			[]int{7},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.expected, DetectOutliers(td.y, 0.25, 0.75, 1.5))
		})
	}
}

func TestRobust(t *testing.T) {
	y := []float64{1, 2, 3, 4, 100}

	med, err := Median(y)
	require.NoError(t, err)
	assert.Equal(t, 3.0, med)

	med, err = Median([]float64{4, 1, 3, 2})
	require.NoError(t, err)
	assert.Equal(t, 2.5, med)

	mad, err := MAD(y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mad)

	tm, err := TrimmedMean([]float64{0, 10, 10, 10, 10, 10, 10, 10, 10, 1000}, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, tm, 1e-9)

	_, err = TrimmedMean(y, 0.5)
	assert.ErrorIs(t, err, ErrTrimFraction)
	_, err = Median(nil)
	assert.ErrorIs(t, err, ErrEmptySample)
}
