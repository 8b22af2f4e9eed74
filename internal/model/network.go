// Package model assembles refinenet networks: an input projection, an
// ODEBlock and an output projection, plus plain MLP baselines.
package model

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/refinenet/internal/loss"
	"github.com/born-ml/refinenet/internal/odenet"
)

// Network is a trainable, refinable model.
type Network[B tensor.Backend] interface {
	nn.Module[B]

	// Gradients runs one forward and backward pass on a batch and returns
	// the loss value and the parameter gradients. The autodiff tape of the
	// backend is empty on return.
	Gradients(x *tensor.Tensor[float32, B], target *tensor.RawTensor, criterion loss.Criterion[B]) (float32, odenet.Grads)

	// Refine returns a new network that computes the same function with
	// doubled time resolution. The receiver is left untouched.
	Refine() (Network[B], error)

	// SetTraining switches normalization layers between batch and running
	// statistics.
	SetTraining(training bool)

	// Metadata describes the architecture for checkpoints.
	Metadata() map[string]string
}

// ParameterCount returns the number of trainable scalars of net.
func ParameterCount[B tensor.Backend](net Network[B]) int {
	return odenet.CountParameters(net.Parameters())
}

// naiveGradients records the forward pass and the loss and walks the whole
// tape backward.
func naiveGradients[B tensor.Backend](
	backend B,
	forward func(*tensor.Tensor[float32, B]) *tensor.Tensor[float32, B],
	x *tensor.Tensor[float32, B],
	target *tensor.RawTensor,
	criterion loss.Criterion[B],
) (float32, odenet.Grads) {
	tape := odenet.TapeOf(backend)
	if tape == nil {
		panic("model: gradients require a recording backend (use autodiff.New)")
	}
	if !tape.IsRecording() {
		tape.StartRecording()
		defer tape.StopRecording()
	}
	tape.Clear()
	defer tape.Clear()

	l := criterion.Forward(forward(x), target)
	value := l.Data()[0]
	return value, odenet.BackwardFrom(backend, odenet.Ones(l.Shape(), backend.Device()))
}
