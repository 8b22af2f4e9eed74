package odenet

import "fmt"

// SliceIndex maps a time value to the index of the parameter slice that is
// active at t on a uniform partition of [0, 1] into timeD cells.
//
// The index is floor(t*timeD), with the right boundary t == 1 clamped to
// timeD-1. The caller guarantees t >= 0; negative times are not clamped.
//
// The floor is taken on the rounded product. A grid point i/n that lands on a
// cell boundary can round just below it and select cell i-1 (for example
// n = timeD = 22, i = 15). Grids and resolutions that are powers of two, which
// is what refining from time_d = 1 produces, are exact.
func SliceIndex(t float64, timeD int) int {
	idx := int(t * float64(timeD))
	if idx == timeD {
		idx = timeD - 1
	}
	return idx
}

// Linspace returns n+1 uniformly spaced points covering [0, 1].
func Linspace(n int) []float64 {
	if n < 1 {
		panic(fmt.Sprintf("odenet: grid needs at least one step, got %d", n))
	}
	ts := make([]float64, n+1)
	for i := range ts {
		ts[i] = float64(i) / float64(n)
	}
	ts[n] = 1.0
	return ts
}
