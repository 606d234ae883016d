package mat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewDenseFromArray(t *testing.T) {
	testData := map[string]struct {
		err error
		x   [][]float64
		m   int
		n   int
	}{
		"nil input": {
			ErrEmpty,
			nil,
			0, 0,
		},
		"empty rows": {
			ErrEmpty,
			[][]float64{{}, {}},
			0, 0,
		},
		"single element": {
			nil,
			[][]float64{{1}},
			1, 1,
		},
		"multiple rows and cols": {
			nil,
			[][]float64{{1, 2, 3}, {4, 5, 6}},
			2, 3,
		},
		"inconsistent cols": {
			ErrColMismatch,
			[][]float64{{1, 2, 3}, {4, 5}},
			0, 0,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			mx, err := NewDenseFromArray(td.x)
			if td.err != nil {
				require.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)

			m, n := mx.Dims()
			assert.Equal(t, td.m, m, "m")
			assert.Equal(t, td.n, n, "n")

			for ri, row := range td.x {
				assert.Equal(t, row, mat.Row(nil, ri, mx), "array")
			}
		})
	}
}

func TestCenterCols(t *testing.T) {
	x, err := NewDenseFromArray([][]float64{{1, 10}, {3, 20}, {5, 30}})
	require.NoError(t, err)

	means := CenterCols(x)
	assert.Equal(t, []float64{3, 20}, means)
	assert.Equal(t, []float64{-2, 0, 2}, mat.Col(nil, 0, x))
	assert.Equal(t, []float64{-10, 0, 10}, mat.Col(nil, 1, x))

	_, err = NewColVector(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}
