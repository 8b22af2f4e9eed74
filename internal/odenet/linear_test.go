package odenet_test

import (
	"testing"

	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeLinear_PiecewiseConstant(t *testing.T) {
	backend := newBackend()
	init := odenet.NewInit(7)
	layer := odenet.NewTimeLinear(4, 3, 5, init, backend)
	x := randn(init, backend, 2, 3)

	// 0.26 and 0.49 share cell 1; 0.5 starts cell 2.
	a := layer.Forward(0.26, x).Data()
	b := layer.Forward(0.49, x).Data()
	c := layer.Forward(0.5, x).Data()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, []int{2, 5}, []int(layer.Forward(0, x).Shape()))
}

func TestTimeLinear_RefinePreservesFunction(t *testing.T) {
	backend := newBackend()
	init := odenet.NewInit(8)
	layer := odenet.NewTimeLinear(3, 4, 2, init, backend)
	refined := layer.Refine()
	require.Equal(t, 6, odenet.Resolution(refined))
	require.Equal(t, 3, layer.TimeD(), "refine must not modify the receiver")

	x := randn(init, backend, 5, 4)
	for _, tt := range []float64{0, 0.1, 1.0 / 3, 0.4, 0.5, 0.7, 0.99, 1} {
		requireClose(t, layer.Forward(tt, x).Data(), refined.Forward(tt, x).Data(), 1e-6, "t=%v", tt)
	}
}

func TestTimeLinear_BadInput(t *testing.T) {
	backend := newBackend()
	init := odenet.NewInit(9)
	layer := odenet.NewTimeLinear(1, 4, 2, init, backend)
	assert.Panics(t, func() { layer.Forward(0, randn(init, backend, 2, 3)) })
	assert.Panics(t, func() { layer.Forward(0, randn(init, backend, 4)) })
}

func TestTimeConv2D_RefinePreservesFunction(t *testing.T) {
	backend := newBackend()
	init := odenet.NewInit(10)
	conv := odenet.NewTimeConv2D(2, 2, 3, 3, 1, init, backend)
	refined := conv.Refine()
	require.Equal(t, 4, odenet.Resolution(refined))

	x := randn(init, backend, 2, 2, 5, 5)
	out := conv.Forward(0.3, x)
	assert.Equal(t, []int{2, 3, 5, 5}, []int(out.Shape()))
	for _, tt := range []float64{0, 0.3, 0.5, 0.8, 1} {
		requireClose(t, conv.Forward(tt, x).Data(), refined.Forward(tt, x).Data(), 1e-5, "t=%v", tt)
	}
}
