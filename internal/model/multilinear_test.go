package model_test

import (
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/refinenet/internal/model"
	"github.com/born-ml/refinenet/internal/odenet"
)

func TestMultiLinear_ForwardShapes(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m := model.NewMultiLinear([]int{2, 3}, []int{4, 1}, odenet.NewInit(30), backend)

	x := odenet.Normal(odenet.NewInit(31), tensor.Shape{5, 2, 3}, 1, backend)
	assert.Equal(t, []int{5, 4, 1}, []int(m.Forward(x).Shape()))

	x4 := odenet.Normal(odenet.NewInit(32), tensor.Shape{2, 5, 2, 3}, 1, backend)
	out := m.Forward(x4)
	assert.Equal(t, []int{2, 5, 4, 1}, []int(out.Shape()))

	// Leading dimensions are independent rows.
	flat := m.Forward(x4.Reshape(10, 2, 3))
	requireClose(t, out.Data(), flat.Data(), 1e-6)

	assert.Panics(t, func() { m.Forward(odenet.Normal(odenet.NewInit(33), tensor.Shape{5, 3, 2}, 1, backend)) })
}

func TestMultiLinear_CloneAndState(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m := model.NewMultiLinear([]int{3}, []int{2, 2}, odenet.NewInit(34), backend)

	c, err := model.CloneLayer[Backend](m, backend)
	require.NoError(t, err)
	clone := c.(*model.MultiLinear[Backend])
	assert.Equal(t, m.OutDims(), clone.OutDims())
	assert.NotSame(t, m.Parameters()[0], clone.Parameters()[0])

	x := odenet.Normal(odenet.NewInit(35), tensor.Shape{4, 3}, 1, backend)
	requireClose(t, m.Forward(x).Data(), clone.Forward(x).Data(), 0)

	other := model.NewMultiLinear([]int{3}, []int{2, 2}, odenet.NewInit(36), backend)
	require.NoError(t, model.LoadLayerState[Backend](other, model.LayerState[Backend](m)))
	requireClose(t, m.Forward(x).Data(), other.Forward(x).Data(), 0)
}

func TestMultiLinearODE_RefineIsDeepCopy(t *testing.T) {
	backend := autodiff.New(cpu.New())
	f := model.NewMultiLinearODE([]int{2, 2}, odenet.NewInit(37), backend)
	block, err := odenet.NewODEBlock[Backend](f, 2, "rk4", false)
	require.NoError(t, err)

	refined := block.Refine()
	assert.Equal(t, 4, refined.NTimeSteps())
	assert.NotSame(t, f.Parameters()[0], refined.Func().Parameters()[0])

	x := odenet.Normal(odenet.NewInit(38), tensor.Shape{3, 2, 2}, 1, backend)
	for _, tt := range []float64{0, 0.4, 1} {
		requireClose(t, f.Forward(tt, x).Data(), refined.Func().Forward(tt, x).Data(), 0, "t=%v", tt)
	}
}

func TestSkipMLP(t *testing.T) {
	backend := autodiff.New(cpu.New())
	skip := model.NewSkipMLP(3, 5, odenet.ReLU, odenet.NewInit(39), backend)
	plain := model.NewMLP([]int{3, 5, 3}, odenet.ReLU, odenet.NewInit(39), backend)

	x := odenet.Normal(odenet.NewInit(40), tensor.Shape{4, 3}, 1, backend)
	want := x.Add(plain.Forward(x)).Data()
	requireClose(t, want, skip.Forward(x).Data(), 1e-6)
	assert.Equal(t, "skip_mlp", skip.Metadata()["kind"])

	refined, err := skip.Refine()
	require.NoError(t, err)
	requireClose(t, want, refined.Forward(x).Data(), 1e-6)
	assert.Equal(t, "skip_mlp", refined.Metadata()["kind"])
}
