package linearmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultLambda     = 1.0
	DefaultIterations = 1000
	DefaultTolerance  = 1e-4
)

var (
	ErrNegativeLambda     = errors.New("negative lambda")
	ErrNegativeIterations = errors.New("negative iterations")
	ErrNegativeTolerance  = errors.New("negative tolerance")
	ErrWarmStartBetaSize  = errors.New("warm start beta does not have the same number of coefficients as training features")
)

// LassoOptions represents input options to run the Lasso Regression
type LassoOptions struct {
	// WarmStartBeta is used to prime the coordinate descent to reduce the training time if a previous
	// fit has been performed. Includes the intercept as the first value when FitIntercept is set.
	WarmStartBeta []float64

	// Lambda represents the L1 multiplier, controlling the regularization. Must be a non-negative. 0.0 results in converging
	// to Ordinary Least Squares (OLS). The intercept is never penalized.
	Lambda float64

	// Iterations is the maximum number of times the fit loops through training all coefficients.
	Iterations int

	// Tolerance is the smallest relative coefficient change on each iteration to determine when to stop iterating.
	Tolerance float64

	// FitIntercept adds a constant 1.0 feature as the first column if set to true
	FitIntercept bool
}

// Validate runs basic validation on Lasso options
func (l *LassoOptions) Validate() (*LassoOptions, error) {
	if l == nil {
		l = NewDefaultLassoOptions()
	}

	if l.Lambda < 0 {
		return nil, ErrNegativeLambda
	}
	if l.Iterations < 0 {
		return nil, ErrNegativeIterations
	}
	if l.Tolerance < 0 {
		return nil, ErrNegativeTolerance
	}
	return l, nil
}

// NewDefaultLassoOptions returns a default set of Lasso Regression options
func NewDefaultLassoOptions() *LassoOptions {
	return &LassoOptions{
		Lambda:        DefaultLambda,
		Iterations:    DefaultIterations,
		Tolerance:     DefaultTolerance,
		WarmStartBeta: nil,
		FitIntercept:  true,
	}
}

// LassoRegression computes the lasso regression using coordinate descent. lambda = 0 converges to OLS
type LassoRegression struct {
	opt *LassoOptions

	// per column views of the design matrix and their precomputed squared norms
	xcols [][]float64
	xdot  []float64
	gamma []float64
	yArr  []float64

	coef       []float64
	intercept  float64
	iterations int
}

// NewLassoRegression initializes a Lasso model ready for fitting
func NewLassoRegression(opt *LassoOptions) (*LassoRegression, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &LassoRegression{
		opt: opt,
	}, nil
}

// Fit the model according to the given training data. The best coefficients reached are kept even
// when ErrNotConverged is returned so the caller may decide whether to accept them.
func (l *LassoRegression) Fit(x, y mat.Matrix) error {
	x, err := l.fitValidate(x, y)
	if err != nil {
		return err
	}
	m, n := x.Dims()

	beta := make([]float64, n)
	if l.opt.WarmStartBeta != nil {
		copy(beta, l.opt.WarmStartBeta)
	}

	l.precompute(n, m, x, y)

	residual := make([]float64, m)
	copy(residual, l.yArr)
	for j := 0; j < n; j++ {
		if beta[j] != 0 {
			floats.AddScaled(residual, -beta[j], l.xcols[j])
		}
	}

	converged := false
	for i := 0; i < l.opt.Iterations; i++ {
		l.iterations = i + 1
		maxCoef := 0.0
		maxUpdate := 0.0

		for j := 0; j < n; j++ {
			if l.xdot[j] == 0 {
				continue
			}
			obsCol := l.xcols[j]
			betaCurr := beta[j]
			betaNext := floats.Dot(obsCol, residual)/l.xdot[j] + betaCurr
			betaNext = SoftThreshold(betaNext, l.gamma[j])

			if diff := betaNext - betaCurr; diff != 0 {
				floats.AddScaled(residual, -diff, obsCol)
				maxUpdate = math.Max(maxUpdate, math.Abs(diff))
			}
			maxCoef = math.Max(maxCoef, math.Abs(betaNext))
			beta[j] = betaNext
		}

		if maxUpdate <= l.opt.Tolerance*maxCoef || maxUpdate < 1e-12 {
			converged = true
			break
		}
	}

	for j, b := range beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return fmt.Errorf("coefficient %d is %f, %w", j, b, ErrNonFinite)
		}
	}

	if l.opt.FitIntercept {
		l.intercept = beta[0]
		l.coef = beta[1:]
	} else {
		l.coef = beta
	}

	if !converged {
		return fmt.Errorf("stopped after %d iterations, %w", l.iterations, ErrNotConverged)
	}
	return nil
}

func (l *LassoRegression) fitValidate(x, y mat.Matrix) (mat.Matrix, error) {
	if l.opt == nil {
		return nil, ErrNoOptions
	}
	if x == nil {
		return nil, ErrNoTrainingMatrix
	}
	if y == nil {
		return nil, ErrNoTargetMatrix
	}

	m, n := x.Dims()

	ym, _ := y.Dims()
	if ym != m {
		return nil, fmt.Errorf("training data has %d rows and target has %d row, %w", m, ym, ErrTargetLenMismatch)
	}

	if l.opt.FitIntercept {
		x = withOnes(x)
		n++
	}

	if l.opt.WarmStartBeta != nil && len(l.opt.WarmStartBeta) != n {
		return nil, fmt.Errorf("warm start beta has %d features instead of %d, %w", len(l.opt.WarmStartBeta), n, ErrWarmStartBetaSize)
	}
	return x, nil
}

func (l *LassoRegression) precompute(n, m int, x, y mat.Matrix) {
	l.xcols = make([][]float64, n)
	l.xdot = make([]float64, n)
	l.gamma = make([]float64, n)
	for i := 0; i < n; i++ {
		xi := mat.Col(nil, i, x)
		l.xcols[i] = xi
		l.xdot[i] = floats.Dot(xi, xi)
		if l.xdot[i] == 0 || (i == 0 && l.opt.FitIntercept) {
			continue
		}
		l.gamma[i] = l.opt.Lambda / l.xdot[i]
	}

	l.yArr = mat.Col(nil, 0, y)
	if len(l.yArr) < m {
		l.yArr = append(l.yArr, make([]float64, m-len(l.yArr))...)
	}
}

// Predict using the Lasso model
func (l *LassoRegression) Predict(x mat.Matrix) ([]float64, error) {
	if l.opt == nil {
		return nil, ErrNoOptions
	}
	if x == nil {
		return nil, ErrNoDesignMatrix
	}
	return predict(x, l.intercept, l.coef, l.opt.FitIntercept)
}

// Score computes the coefficient of determination of the prediction
func (l *LassoRegression) Score(x, y mat.Matrix) (float64, error) {
	if l.opt == nil {
		return 0.0, ErrNoOptions
	}
	return score(l, x, y)
}

// Intercept returns the computed intercept if FitIntercept is set to true. Defaults to 0.0 if not set.
func (l *LassoRegression) Intercept() float64 {
	return l.intercept
}

// Coef returns a slice of the trained coefficients in the same order of the training feature Matrix by column.
func (l *LassoRegression) Coef() []float64 {
	c := make([]float64, len(l.coef))
	copy(c, l.coef)
	return c
}

// Iterations returns the number of coordinate descent passes used by the last fit
func (l *LassoRegression) Iterations() int {
	return l.iterations
}

// SoftThreshold returns 0.0 if the value is less than or equal to the gamma input
func SoftThreshold(x, gamma float64) float64 {
	res := math.Max(0, math.Abs(x)-gamma)
	if math.Signbit(x) {
		return -res
	}
	return res
}
