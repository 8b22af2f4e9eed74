package model

import (
	"fmt"
	"strconv"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/refinenet/internal/loss"
	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/pkg/errors"
)

// MLP is a fully connected baseline: Linear layers with an activation
// between consecutive layers. It has no time resolution, so Refine returns a
// deep copy.
//
// A skip MLP adds its input to the output, x + mlp(x).
type MLP[B tensor.Backend] struct {
	layers  []*nn.Linear[B]
	act     odenet.Activation
	skip    bool
	backend B
}

// NewMLP creates an MLP through widths, e.g. {in, hidden, out} for a shallow
// network or {in, h1, h2, ..., out} for a deep one.
func NewMLP[B tensor.Backend](widths []int, act odenet.Activation, init *odenet.Init, backend B) *MLP[B] {
	if len(widths) < 2 {
		panic(fmt.Sprintf("MLP: need at least input and output widths, got %v", widths))
	}
	m := &MLP[B]{act: act, backend: backend}
	for i := 0; i+1 < len(widths); i++ {
		l := nn.NewLinear(widths[i], widths[i+1], backend)
		odenet.Reset(init, l.Parameters())
		m.layers = append(m.layers, l)
	}
	return m
}

// NewSkipMLP creates the residual shallow baseline x + L2(act(L1(x))) on
// dim features.
func NewSkipMLP[B tensor.Backend](dim, hidden int, act odenet.Activation, init *odenet.Init, backend B) *MLP[B] {
	m := NewMLP([]int{dim, hidden, dim}, act, init, backend)
	m.skip = true
	return m
}

// Forward applies the layers with act in between.
func (m *MLP[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	h := x
	for i, l := range m.layers {
		h = l.Forward(h)
		if i+1 < len(m.layers) {
			h = odenet.Activate(m.act, h)
		}
	}
	if m.skip {
		return x.Add(h)
	}
	return h
}

// Parameters returns the weights and biases of every layer.
func (m *MLP[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, l := range m.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Gradients uses plain reverse mode.
func (m *MLP[B]) Gradients(x *tensor.Tensor[float32, B], target *tensor.RawTensor, criterion loss.Criterion[B]) (float32, odenet.Grads) {
	return naiveGradients(m.backend, m.Forward, x, target, criterion)
}

// Refine returns a deep copy.
func (m *MLP[B]) Refine() (Network[B], error) {
	clone := &MLP[B]{act: m.act, skip: m.skip, backend: m.backend}
	for _, l := range m.layers {
		c, err := CloneLayer[B](l, m.backend)
		if err != nil {
			return nil, err
		}
		clone.layers = append(clone.layers, c.(*nn.Linear[B]))
	}
	return clone, nil
}

// StateDict keys layer i under "<i>.".
func (m *MLP[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i, l := range m.layers {
		odenet.Prefixed(state, l.StateDict(), fmt.Sprintf("%d.", i))
	}
	return state
}

// LoadStateDict loads every layer.
func (m *MLP[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for i, l := range m.layers {
		if err := l.LoadStateDict(odenet.SubState(state, fmt.Sprintf("%d.", i))); err != nil {
			return errors.Wrapf(err, "layer %d", i)
		}
	}
	return nil
}

// SetTraining is a no-op; an MLP has no normalization.
func (m *MLP[B]) SetTraining(bool) {}

// Metadata reports the kind and depth.
func (m *MLP[B]) Metadata() map[string]string {
	kind := "mlp"
	if m.skip {
		kind = "skip_mlp"
	}
	return map[string]string{
		"kind":   kind,
		"layers": strconv.Itoa(len(m.layers)),
	}
}
