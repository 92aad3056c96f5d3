// Package nanstats provides NaN-aware statistics over float64 slices.
//
// Failed line fits propagate through the pipeline as NaN sentinels, so
// every reduction here skips non-finite samples instead of poisoning
// the result.
package nanstats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Finite returns the finite samples of x in a fresh slice.
func Finite(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// CountFinite returns the number of finite samples in x.
func CountFinite(x []float64) int {
	n := 0
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			n++
		}
	}
	return n
}

// Mean returns the mean of the finite samples of x, or NaN when there
// are none.
func Mean(x []float64) float64 {
	f := Finite(x)
	if len(f) == 0 {
		return math.NaN()
	}
	return stat.Mean(f, nil)
}

// Std returns the population standard deviation of the finite samples
// of x, or NaN when there are none.
func Std(x []float64) float64 {
	f := Finite(x)
	if len(f) == 0 {
		return math.NaN()
	}
	mean := stat.Mean(f, nil)
	var ss float64
	for _, v := range f {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(f)))
}

// Median returns the median of the finite samples of x, averaging the
// middle pair for even counts, or NaN when there are none.
func Median(x []float64) float64 {
	f := Finite(x)
	if len(f) == 0 {
		return math.NaN()
	}
	sort.Float64s(f)
	n := len(f)
	if n%2 == 1 {
		return f[n/2]
	}
	return 0.5 * (f[n/2-1] + f[n/2])
}

// RMS returns the root mean square of the finite samples of x, or NaN
// when there are none.
func RMS(x []float64) float64 {
	f := Finite(x)
	if len(f) == 0 {
		return math.NaN()
	}
	var ss float64
	for _, v := range f {
		ss += v * v
	}
	return math.Sqrt(ss / float64(len(f)))
}
