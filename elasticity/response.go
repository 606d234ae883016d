package elasticity

import "math"

// Lift returns the demand multiplier of discount d, 1 + eps*d*(1 - s*d), clipped to the
// configured bounds. Deep discounts past saturation may show a lift below one.
func (o *Options) Lift(eps, d float64) float64 {
	if d <= 0 {
		return 1.0
	}
	lift := 1 + eps*d*(1-o.Saturation*d)
	return math.Min(math.Max(lift, o.MinLift), o.MaxLift)
}

// Response returns the expected demand at discount d given the undiscounted demand q0
func (o *Options) Response(q0, eps, d float64) float64 {
	return q0 * o.Lift(eps, d)
}
