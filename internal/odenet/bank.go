package odenet

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// ParameterBank holds one weight and one bias tensor per time slice.
//
// Each slice is its own nn.Parameter, so the gradient of a forward pass at
// time t lands only on the slice that was active at t.
//
// The number of slices is fixed at construction. Only Refine produces a bank
// of a different length; optimizers mutate values in place.
type ParameterBank[B tensor.Backend] struct {
	name        string
	weightShape tensor.Shape
	biasShape   tensor.Shape
	weights     []*nn.Parameter[B]
	biases      []*nn.Parameter[B]
	backend     B
}

// NewParameterBank creates a bank of timeD slices. Weights are drawn from
// N(0, std^2); biases start at zero.
func NewParameterBank[B tensor.Backend](
	name string,
	timeD int,
	weightShape, biasShape tensor.Shape,
	std float64,
	init *Init,
	backend B,
) *ParameterBank[B] {
	if timeD < 1 {
		panic(fmt.Sprintf("ParameterBank: time_d must be >= 1, got %d", timeD))
	}
	bank := newEmptyBank(name, timeD, weightShape, biasShape, backend)
	for i := 0; i < timeD; i++ {
		bank.weights[i] = nn.NewParameter(bank.weightName(i), Normal(init, weightShape, std, backend))
		bank.biases[i] = nn.NewParameter(bank.biasName(i), tensor.Zeros[float32](biasShape, backend))
	}
	return bank
}

func newEmptyBank[B tensor.Backend](name string, timeD int, weightShape, biasShape tensor.Shape, backend B) *ParameterBank[B] {
	return &ParameterBank[B]{
		name:        name,
		weightShape: weightShape.Clone(),
		biasShape:   biasShape.Clone(),
		weights:     make([]*nn.Parameter[B], timeD),
		biases:      make([]*nn.Parameter[B], timeD),
		backend:     backend,
	}
}

// TimeD returns the number of time slices.
func (p *ParameterBank[B]) TimeD() int {
	return len(p.weights)
}

// Slice returns the weight and bias tensors of slice idx.
func (p *ParameterBank[B]) Slice(idx int) (weight, bias *tensor.Tensor[float32, B]) {
	return p.weights[idx].Tensor(), p.biases[idx].Tensor()
}

// At returns the weight and bias tensors active at time t.
func (p *ParameterBank[B]) At(t float64) (weight, bias *tensor.Tensor[float32, B]) {
	return p.Slice(SliceIndex(t, p.TimeD()))
}

// Parameters returns all weights followed by all biases.
func (p *ParameterBank[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 2*len(p.weights))
	params = append(params, p.weights...)
	return append(params, p.biases...)
}

// Refine returns a bank with twice as many slices in which slices 2i and
// 2i+1 are copies of slice i.
func (p *ParameterBank[B]) Refine() *ParameterBank[B] {
	timeD := p.TimeD()
	bank := newEmptyBank(p.name, 2*timeD, p.weightShape, p.biasShape, p.backend)
	for i := 0; i < timeD; i++ {
		for _, j := range [2]int{2 * i, 2*i + 1} {
			bank.weights[j] = nn.NewParameter(bank.weightName(j), Clone(p.weights[i].Tensor()))
			bank.biases[j] = nn.NewParameter(bank.biasName(j), Clone(p.biases[i].Tensor()))
		}
	}
	return bank
}

// Clone returns a deep copy of the bank with the same number of slices.
func (p *ParameterBank[B]) Clone() *ParameterBank[B] {
	timeD := p.TimeD()
	bank := newEmptyBank(p.name, timeD, p.weightShape, p.biasShape, p.backend)
	for i := 0; i < timeD; i++ {
		bank.weights[i] = nn.NewParameter(bank.weightName(i), Clone(p.weights[i].Tensor()))
		bank.biases[i] = nn.NewParameter(bank.biasName(i), Clone(p.biases[i].Tensor()))
	}
	return bank
}

// StateDict returns the slices keyed "weight.<i>" and "bias.<i>".
func (p *ParameterBank[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, 2*len(p.weights))
	for i := range p.weights {
		state[fmt.Sprintf("weight.%d", i)] = p.weights[i].Tensor().Raw()
		state[fmt.Sprintf("bias.%d", i)] = p.biases[i].Tensor().Raw()
	}
	return state
}

// LoadStateDict copies the slices of state into the bank. The state must have
// been produced by a bank with the same time_d and shapes.
func (p *ParameterBank[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for i := range p.weights {
		if err := loadInto(state, fmt.Sprintf("weight.%d", i), p.weights[i].Tensor()); err != nil {
			return errors.Wrapf(err, "bank %s", p.name)
		}
		if err := loadInto(state, fmt.Sprintf("bias.%d", i), p.biases[i].Tensor()); err != nil {
			return errors.Wrapf(err, "bank %s", p.name)
		}
	}
	return nil
}

func (p *ParameterBank[B]) weightName(i int) string {
	return fmt.Sprintf("%s.weight.%d", p.name, i)
}

func (p *ParameterBank[B]) biasName(i int) string {
	return fmt.Sprintf("%s.bias.%d", p.name, i)
}

// loadInto copies state[key] into dst after checking shape and dtype.
func loadInto[B tensor.Backend](state map[string]*tensor.RawTensor, key string, dst *tensor.Tensor[float32, B]) error {
	raw, ok := state[key]
	if !ok {
		return errors.Errorf("missing %s in state dict", key)
	}
	if !raw.Shape().Equal(dst.Shape()) {
		return errors.Errorf("%s shape mismatch: expected %v, got %v", key, dst.Shape(), raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return errors.Errorf("%s dtype mismatch: expected float32, got %v", key, raw.DType())
	}
	copy(dst.Data(), raw.AsFloat32())
	return nil
}
