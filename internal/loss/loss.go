// Package loss provides the training criteria of refinenet.
//
// Every criterion returns a [1]-shaped tensor whose computation is recorded
// on the autodiff tape, with the loss as the last recorded operation, so the
// tape can be walked backward from it with a seed of ones.
package loss

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// Criterion maps predictions and targets to a scalar loss.
type Criterion[B tensor.Backend] interface {
	Forward(pred *tensor.Tensor[float32, B], target *tensor.RawTensor) *tensor.Tensor[float32, B]
	Name() string
}

// Criterion names.
const (
	CrossEntropyName = "cross_entropy"
	MSEName          = "mse"
)

// New returns the criterion registered under name.
func New[B tensor.Backend](name string, backend B) (Criterion[B], error) {
	switch name {
	case CrossEntropyName:
		return NewCrossEntropy(backend), nil
	case MSEName:
		return NewMSE(backend), nil
	}
	return nil, errors.Errorf("unknown loss %q (want %s or %s)", name, CrossEntropyName, MSEName)
}

// CrossEntropy is the mean softmax cross-entropy over int32 class labels.
type CrossEntropy[B tensor.Backend] struct {
	ce      *nn.CrossEntropyLoss[B]
	backend B
}

// NewCrossEntropy creates a CrossEntropy criterion.
func NewCrossEntropy[B tensor.Backend](backend B) *CrossEntropy[B] {
	return &CrossEntropy[B]{ce: nn.NewCrossEntropyLoss(backend), backend: backend}
}

// Forward expects logits [batch, classes] and labels [batch].
func (c *CrossEntropy[B]) Forward(logits *tensor.Tensor[float32, B], labels *tensor.RawTensor) *tensor.Tensor[float32, B] {
	if labels.DType() != tensor.Int32 {
		panic(fmt.Sprintf("CrossEntropy: labels must be int32, got %v", labels.DType()))
	}
	return c.ce.Forward(logits, tensor.New[int32, B](labels, c.backend))
}

// Name returns "cross_entropy".
func (c *CrossEntropy[B]) Name() string { return CrossEntropyName }

// MSE is the mean squared error over float32 targets of the prediction's
// shape.
type MSE[B tensor.Backend] struct {
	backend B
}

// NewMSE creates an MSE criterion.
func NewMSE[B tensor.Backend](backend B) *MSE[B] {
	return &MSE[B]{backend: backend}
}

// Forward computes mean((pred - target)^2) from recorded Sub, Mul, MeanDim
// and Reshape operations.
func (m *MSE[B]) Forward(pred *tensor.Tensor[float32, B], target *tensor.RawTensor) *tensor.Tensor[float32, B] {
	if !pred.Shape().Equal(target.Shape()) {
		panic(fmt.Sprintf("MSE: prediction shape %v != target shape %v", pred.Shape(), target.Shape()))
	}
	diff := pred.Sub(tensor.New[float32, B](target, m.backend))
	sq := diff.Mul(diff)
	for dim := len(sq.Shape()) - 1; dim >= 0; dim-- {
		sq = sq.MeanDim(dim, true)
	}
	return sq.Reshape(1)
}

// Name returns "mse".
func (m *MSE[B]) Name() string { return MSEName }
