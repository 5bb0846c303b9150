package analytics

import (
	"math"
	"sort"
)

// Window bounds accepted for rolling calculations.
const (
	MinWindow = 5
	MaxWindow = 100
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd is the n-1 (sample) standard deviation, NaN below 2 points.
func sampleStd(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return math.NaN()
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// rollingApply fills the first window-1 slots with NaN and applies fn to
// each full window. Missing leading entries are reported as NaN, never 0.
func rollingApply(xs []float64, window int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(xs[i-window+1 : i+1])
	}
	return out
}

func rollingMean(xs []float64, window int) []float64 {
	return rollingApply(xs, window, mean)
}

func rollingStd(xs []float64, window int) []float64 {
	return rollingApply(xs, window, sampleStd)
}

// validPoints drops NaN entries.
func validPoints(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// pctReturns is the simple percent-return series between consecutive values.
func pctReturns(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		if xs[i-1] == 0 {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, xs[i]/xs[i-1]-1)
	}
	return out
}
