package odenet

import (
	"fmt"
	"math"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// TimeLinear is a fully connected layer whose weights are piecewise constant
// in time.
//
// At time t it computes y = x @ W[idx] + b[idx] with
// idx = min(floor(t*time_d), time_d-1), where
//   - x has shape [batch_size, in_features]
//   - W[idx] has shape [in_features, out_features]
//   - b[idx] has shape [out_features]
//
// Example:
//
//	layer := odenet.NewTimeLinear(4, 10, 16, odenet.NewInit(1), backend)
//	y := layer.Forward(0.3, x) // uses slice 1
type TimeLinear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	bank        *ParameterBank[B]
}

// NewTimeLinear creates a TimeLinear with timeD slices. Weights are drawn
// from N(0, 1/out_features); biases start at zero.
func NewTimeLinear[B tensor.Backend](timeD, inFeatures, outFeatures int, init *Init, backend B) *TimeLinear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("TimeLinear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}
	bank := NewParameterBank("linear", timeD,
		tensor.Shape{inFeatures, outFeatures},
		tensor.Shape{outFeatures},
		1.0/math.Sqrt(float64(outFeatures)),
		init, backend)
	return &TimeLinear[B]{inFeatures: inFeatures, outFeatures: outFeatures, bank: bank}
}

// Forward applies the slice active at t.
func (l *TimeLinear[B]) Forward(t float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("TimeLinear.Forward: expected 2D input [batch, features], got shape %v", shape))
	}
	if shape[1] != l.inFeatures {
		panic(fmt.Sprintf("TimeLinear.Forward: expected input with %d features, got %d", l.inFeatures, shape[1]))
	}
	w, b := l.bank.At(t)
	return x.MatMul(w).Add(b.Reshape(1, l.outFeatures))
}

// Parameters returns every weight and bias slice.
func (l *TimeLinear[B]) Parameters() []*nn.Parameter[B] {
	return l.bank.Parameters()
}

// StateDict returns the slices of the bank.
func (l *TimeLinear[B]) StateDict() map[string]*tensor.RawTensor {
	return l.bank.StateDict()
}

// LoadStateDict loads the slices of the bank.
func (l *TimeLinear[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return l.bank.LoadStateDict(state)
}

// Refine returns a TimeLinear with 2*time_d slices computing the same
// function.
func (l *TimeLinear[B]) Refine() Func[B] {
	return l.RefineLinear()
}

// RefineLinear is Refine with the concrete return type.
func (l *TimeLinear[B]) RefineLinear() *TimeLinear[B] {
	return &TimeLinear[B]{inFeatures: l.inFeatures, outFeatures: l.outFeatures, bank: l.bank.Refine()}
}

// TimeD returns the number of time slices.
func (l *TimeLinear[B]) TimeD() int {
	return l.bank.TimeD()
}

// Bank returns the parameter bank.
func (l *TimeLinear[B]) Bank() *ParameterBank[B] {
	return l.bank
}

// InFeatures returns the number of input features.
func (l *TimeLinear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *TimeLinear[B]) OutFeatures() int {
	return l.outFeatures
}
