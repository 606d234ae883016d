// Package mat holds small dense matrix helpers on top of gonum used to build design matrices
package mat

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrColMismatch = errors.New("column size mismatch")
	ErrEmpty       = errors.New("no rows or columns")
)

// NewDenseFromArray converts a row major slice of rows into a dense matrix
func NewDenseFromArray(x [][]float64) (*mat.Dense, error) {
	m := len(x)

	n := -1
	for i, row := range x {
		if n >= 0 && len(row) != n {
			return nil, fmt.Errorf("at row %d, %w", i, ErrColMismatch)
		}
		if n < 0 {
			n = len(row)
		}
	}
	if m == 0 || n <= 0 {
		return nil, ErrEmpty
	}

	// flatten to row order
	data := make([]float64, 0, m*n)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(m, n, data), nil
}

// NewColVector wraps the values as an m x 1 matrix. The slice is copied.
func NewColVector(y []float64) (*mat.Dense, error) {
	if len(y) == 0 {
		return nil, ErrEmpty
	}
	data := make([]float64, len(y))
	copy(data, y)
	return mat.NewDense(len(y), 1, data), nil
}

// CenterCols subtracts each column's mean in place and returns the means that were removed
func CenterCols(x *mat.Dense) []float64 {
	m, n := x.Dims()
	means := make([]float64, n)
	col := make([]float64, m)
	for j := 0; j < n; j++ {
		mat.Col(col, j, x)
		means[j] = floats.Sum(col) / float64(m)
		floats.AddConst(-means[j], col)
		x.SetCol(j, col)
	}
	return means
}
