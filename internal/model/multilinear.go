package model

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/refinenet/internal/odenet"
)

// MultiLinear is a Linear layer over trailing dimensions of any rank: the
// last len(inDims) dimensions of the input are flattened, mapped, and
// reshaped to outDims. Leading dimensions pass through.
type MultiLinear[B tensor.Backend] struct {
	inDims  tensor.Shape
	outDims tensor.Shape
	linear  *nn.Linear[B]
}

// NewMultiLinear creates a MultiLinear from inDims to outDims.
func NewMultiLinear[B tensor.Backend](inDims, outDims []int, init *odenet.Init, backend B) *MultiLinear[B] {
	in, out := tensor.Shape(inDims).Clone(), tensor.Shape(outDims).Clone()
	if len(in) == 0 || len(out) == 0 {
		panic(fmt.Sprintf("MultiLinear: empty dims in=%v out=%v", inDims, outDims))
	}
	linear := nn.NewLinear(in.NumElements(), out.NumElements(), backend)
	odenet.Reset(init, linear.Parameters())
	return &MultiLinear[B]{inDims: in, outDims: out, linear: linear}
}

// InDims returns the trailing input dimensions.
func (m *MultiLinear[B]) InDims() []int { return m.inDims.Clone() }

// OutDims returns the trailing output dimensions.
func (m *MultiLinear[B]) OutDims() []int { return m.outDims.Clone() }

// Forward maps [..., inDims...] to [..., outDims...].
func (m *MultiLinear[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	lead := len(shape) - len(m.inDims)
	if lead < 1 || !shape[lead:].Equal(m.inDims) {
		panic(fmt.Sprintf("MultiLinear.Forward: expected [..., %v], got %v", m.inDims, shape))
	}
	rows := shape[:lead].NumElements()
	h := m.linear.Forward(x.Reshape(rows, m.inDims.NumElements()))

	outShape := append(shape[:lead].Clone(), m.outDims...)
	return h.Reshape(outShape...)
}

// Parameters returns the weight and bias.
func (m *MultiLinear[B]) Parameters() []*nn.Parameter[B] {
	return m.linear.Parameters()
}

// StateDict returns the state of the underlying Linear.
func (m *MultiLinear[B]) StateDict() map[string]*tensor.RawTensor {
	return m.linear.StateDict()
}

// LoadStateDict loads the underlying Linear.
func (m *MultiLinear[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return m.linear.LoadStateDict(state)
}

// NewMultiLinearODE wraps a MultiLinear from dims to dims as a
// time-independent right-hand side. Refining it makes a deep copy.
func NewMultiLinearODE[B tensor.Backend](dims []int, init *odenet.Init, backend B) *odenet.ODEify[B] {
	return odenet.NewODEify(func() odenet.Module[B] {
		return NewMultiLinear(dims, dims, init, backend)
	})
}
