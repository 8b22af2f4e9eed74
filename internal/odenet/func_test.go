package odenet_test

import (
	"testing"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_Refine(t *testing.T) {
	backend := newBackend()
	init := odenet.NewInit(30)
	seq := odenet.NewSequence[Backend](
		odenet.NewTimeLinear(1, 3, 4, init, backend),
		odenet.NewTimeLinear(2, 4, 3, init, backend),
	)
	require.Equal(t, 2, seq.TimeD())

	refined := seq.Refine().(*odenet.Sequence[Backend])
	require.Equal(t, 2, refined.Len())
	assert.Equal(t, 2, odenet.Resolution(refined.Func(0)))
	assert.Equal(t, 4, odenet.Resolution(refined.Func(1)))

	x := randn(init, backend, 2, 3)
	for _, tt := range []float64{0, 0.4, 0.6, 1} {
		requireClose(t, seq.Forward(tt, x).Data(), refined.Forward(tt, x).Data(), 1e-6)
	}

	state := seq.StateDict()
	assert.Contains(t, state, "0.weight.0")
	assert.Contains(t, state, "1.bias.1")
}

func TestODEify_RefineIsDeepCopy(t *testing.T) {
	backend := newBackend()
	init := odenet.NewInit(31)
	f := odenet.NewODEify(func() odenet.Module[Backend] {
		return nn.NewLinear(3, 3, backend)
	})
	refined := odenet.Refine[Backend](f)
	assert.Equal(t, 0, odenet.Resolution(refined))

	x := randn(init, backend, 2, 3)
	want := f.Forward(0, x).Data()
	requireClose(t, want, refined.Forward(1, x).Data(), 1e-6, "t is ignored and values copied")

	f.Parameters()[0].Tensor().Data()[0] += 1
	requireClose(t, want, refined.Forward(0, x).Data(), 1e-6, "copy must not share weights")

	require.NoError(t, refined.LoadStateDict(f.StateDict()))
	requireClose(t, f.Forward(0, x).Data(), refined.Forward(0, x).Data(), 1e-6)
}

func TestParseActivation(t *testing.T) {
	act, err := odenet.ParseActivation("tanh")
	require.NoError(t, err)
	assert.Equal(t, odenet.Tanh, act)

	_, err = odenet.ParseActivation("gelu")
	assert.Error(t, err)
}
