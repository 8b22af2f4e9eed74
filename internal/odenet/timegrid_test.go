package odenet_test

import (
	"testing"

	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/stretchr/testify/assert"
)

func TestSliceIndex(t *testing.T) {
	tests := []struct {
		t     float64
		timeD int
		want  int
	}{
		{0, 1, 0},
		{1, 1, 0},
		{0.49, 2, 0},
		{0.5, 2, 1},
		{1, 2, 1},
		{0.25, 4, 1},
		{0.999, 4, 3},
		{1, 8, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, odenet.SliceIndex(tt.t, tt.timeD), "t=%v time_d=%d", tt.t, tt.timeD)
	}
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 1}, odenet.Linspace(1))
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, odenet.Linspace(4))
	assert.Panics(t, func() { odenet.Linspace(0) })
}

func TestSliceIndex_PowerOfTwoGridsAreExact(t *testing.T) {
	for timeD := 1; timeD <= 256; timeD *= 2 {
		for _, n := range []int{timeD, 2 * timeD} {
			ts := odenet.Linspace(n)
			for i, tt := range ts[:n] {
				assert.Equal(t, i*timeD/n, odenet.SliceIndex(tt, timeD), "time_d=%d n=%d i=%d", timeD, n, i)
			}
		}
	}
}
