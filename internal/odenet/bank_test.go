package odenet_test

import (
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterBank_Refine(t *testing.T) {
	backend := newBackend()
	bank := odenet.NewParameterBank("L", 3, tensor.Shape{2, 4}, tensor.Shape{4}, 1.0, odenet.NewInit(1), backend)
	require.Equal(t, 3, bank.TimeD())
	require.Len(t, bank.Parameters(), 6)

	twice := bank.Refine().Refine()
	require.Equal(t, 12, twice.TimeD())
	for i := 0; i < bank.TimeD(); i++ {
		w, b := bank.Slice(i)
		for j := 4 * i; j < 4*i+4; j++ {
			wj, bj := twice.Slice(j)
			assert.Equal(t, w.Data(), wj.Data(), "weight slice %d from %d", j, i)
			assert.Equal(t, b.Data(), bj.Data(), "bias slice %d from %d", j, i)
		}
	}

	// Slices are independent copies.
	w0, _ := twice.Slice(0)
	w0.Data()[0] += 1
	w1, _ := twice.Slice(1)
	orig, _ := bank.Slice(0)
	assert.NotEqual(t, w0.Data()[0], w1.Data()[0])
	assert.NotEqual(t, w0.Data()[0], orig.Data()[0])
}

func TestParameterBank_At(t *testing.T) {
	backend := newBackend()
	bank := odenet.NewParameterBank("L", 4, tensor.Shape{1, 1}, tensor.Shape{1}, 1.0, odenet.NewInit(2), backend)
	for i := 0; i < 4; i++ {
		w, _ := bank.Slice(i)
		w.Data()[0] = float32(i)
	}
	for _, tc := range []struct {
		t    float64
		want float32
	}{{0, 0}, {0.3, 1}, {0.5, 2}, {0.99, 3}, {1, 3}} {
		w, _ := bank.At(tc.t)
		assert.Equal(t, tc.want, w.Data()[0], "t=%v", tc.t)
	}
}

func TestParameterBank_StateDict(t *testing.T) {
	backend := newBackend()
	src := odenet.NewParameterBank("L", 2, tensor.Shape{3, 2}, tensor.Shape{2}, 1.0, odenet.NewInit(3), backend)
	dst := odenet.NewParameterBank("L", 2, tensor.Shape{3, 2}, tensor.Shape{2}, 1.0, odenet.NewInit(4), backend)

	state := src.StateDict()
	assert.Contains(t, state, "weight.1")
	assert.Contains(t, state, "bias.0")
	require.NoError(t, dst.LoadStateDict(state))
	for i := 0; i < 2; i++ {
		ws, _ := src.Slice(i)
		wd, _ := dst.Slice(i)
		assert.Equal(t, ws.Data(), wd.Data())
	}

	coarse := odenet.NewParameterBank("L", 1, tensor.Shape{3, 2}, tensor.Shape{2}, 1.0, odenet.NewInit(5), backend)
	assert.Error(t, dst.LoadStateDict(coarse.StateDict()))
}

func TestParameterBank_InvalidTimeD(t *testing.T) {
	assert.Panics(t, func() {
		odenet.NewParameterBank("L", 0, tensor.Shape{1, 1}, tensor.Shape{1}, 1.0, odenet.NewInit(0), newBackend())
	})
}

func TestInit_Deterministic(t *testing.T) {
	backend := newBackend()
	a := odenet.NewTimeLinear(2, 3, 4, odenet.NewInit(42), backend)
	b := odenet.NewTimeLinear(2, 3, 4, odenet.NewInit(42), backend)
	c := odenet.NewTimeLinear(2, 3, 4, odenet.NewInit(43), backend)
	for i, p := range a.Parameters() {
		assert.Equal(t, p.Tensor().Data(), b.Parameters()[i].Tensor().Data())
	}
	assert.NotEqual(t, a.Parameters()[0].Tensor().Data(), c.Parameters()[0].Tensor().Data())
}
