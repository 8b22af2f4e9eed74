package loss_test

import (
	"math"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/refinenet/internal/loss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func ones(shape tensor.Shape, backend Backend) *tensor.RawTensor {
	return tensor.Ones[float32](shape, backend).Raw()
}

func TestNew(t *testing.T) {
	backend := autodiff.New(cpu.New())
	for _, name := range []string{loss.CrossEntropyName, loss.MSEName} {
		c, err := loss.New(name, backend)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	_, err := loss.New("hinge", backend)
	assert.Error(t, err)
}

func TestMSE_ValueAndGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	tape.StartRecording()
	defer tape.StopRecording()

	pred, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	target, err := tensor.FromSlice([]float32{0, 2, 5, 4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)

	l := loss.NewMSE(backend).Forward(pred, target.Raw())
	require.Equal(t, []int{1}, []int(l.Shape()))
	assert.InDelta(t, (1.0+0+4+0)/4, l.Data()[0], 1e-6)

	grads := tape.Backward(ones(l.Shape(), backend), backend)
	require.Contains(t, grads, pred.Raw())
	// d/dpred mean((pred-target)^2) = 2*(pred-target)/n
	want := []float32{0.5, 0, -1, 0}
	for i, g := range grads[pred.Raw()].AsFloat32() {
		assert.InDelta(t, want[i], g, 1e-6)
	}
}

func TestCrossEntropy(t *testing.T) {
	backend := autodiff.New(cpu.New())
	logits, err := tensor.FromSlice([]float32{0, 0, 0, 0}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	labels, err := tensor.FromSlice([]int32{0, 1}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	l := loss.NewCrossEntropy(backend).Forward(logits, labels.Raw())
	assert.InDelta(t, math.Log(2), l.Data()[0], 1e-5)

	assert.Panics(t, func() {
		loss.NewCrossEntropy(backend).Forward(logits, logits.Raw())
	})
}

func TestMSE_ShapeMismatch(t *testing.T) {
	backend := autodiff.New(cpu.New())
	pred := tensor.Ones[float32](tensor.Shape{2, 2}, backend)
	assert.Panics(t, func() {
		loss.NewMSE(backend).Forward(pred, ones(tensor.Shape{4}, backend))
	})
}
