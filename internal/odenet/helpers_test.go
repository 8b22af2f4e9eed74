package odenet_test

import (
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

func randn(init *odenet.Init, backend Backend, shape ...int) *tensor.Tensor[float32, Backend] {
	return odenet.Normal(init, tensor.Shape(shape), 1.0, backend)
}

func requireClose(t *testing.T, want, got []float32, delta float64, msgAndArgs ...any) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	for i := range want {
		require.InDelta(t, want[i], got[i], delta, msgAndArgs...)
	}
}
