package model

import "math"

// EWMStats returns the exponentially weighted mean and standard deviation
// of xs as of its last element, with weights (1-alpha)^(n-1-i) and the
// unbiased variance correction. Fewer than two points give a zero std.
func EWMStats(xs []float64, alpha float64) (mean, std float64) {
	n := len(xs)
	if n == 0 {
		return 0, 0
	}

	decay := 1 - alpha
	w := 1.0
	var sumW, sumW2, sumWX float64
	weights := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		weights[i] = w
		sumW += w
		sumW2 += w * w
		sumWX += w * xs[i]
		w *= decay
	}
	mean = sumWX / sumW

	if n < 2 {
		return mean, 0
	}
	var ss float64
	for i, x := range xs {
		d := x - mean
		ss += weights[i] * d * d
	}
	denom := sumW*sumW - sumW2
	if denom <= 0 {
		return mean, 0
	}
	variance := ss / sumW * (sumW * sumW / denom)
	return mean, math.Sqrt(variance)
}
