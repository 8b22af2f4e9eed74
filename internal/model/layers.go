package model

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/pkg/errors"
)

// Layer is a time-independent module used as an input or output projection.
type Layer[B tensor.Backend] interface {
	Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Parameters() []*nn.Parameter[B]
}

// Flatten reshapes [N, d1, d2, ...] to [N, d1*d2*...].
type Flatten[B tensor.Backend] struct{}

// NewFlatten creates a Flatten layer.
func NewFlatten[B tensor.Backend]() *Flatten[B] {
	return &Flatten[B]{}
}

// Forward flattens all but the batch dimension.
func (f *Flatten[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("Flatten.Forward: expected at least 2D input, got %v", shape))
	}
	return x.Reshape(shape[0], shape.NumElements()/shape[0])
}

// Parameters returns nil.
func (f *Flatten[B]) Parameters() []*nn.Parameter[B] { return nil }

// Chain applies layers in order.
type Chain[B tensor.Backend] struct {
	layers []Layer[B]
}

// NewChain creates a Chain.
func NewChain[B tensor.Backend](layers ...Layer[B]) *Chain[B] {
	return &Chain[B]{layers: layers}
}

// Forward applies every layer.
func (c *Chain[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	for _, l := range c.layers {
		x = l.Forward(x)
	}
	return x
}

// Parameters returns the parameters of every layer, in order.
func (c *Chain[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, l := range c.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// CloneLayer returns a deep copy of l. Known Born layers are rebuilt with
// the same configuration and their values copied. Any other layer yields
// odenet.ErrNotRefinable.
func CloneLayer[B tensor.Backend](l Layer[B], backend B) (Layer[B], error) {
	var clone Layer[B]
	switch l := l.(type) {
	case *nn.Linear[B]:
		clone = nn.NewLinear(l.InFeatures(), l.OutFeatures(), backend)
	case *nn.Conv2D[B]:
		k := l.KernelSize()
		clone = nn.NewConv2D(l.InChannels(), l.OutChannels(), k[0], k[1],
			l.Stride(), l.Padding(), len(l.Parameters()) == 2, backend)
	case *MultiLinear[B]:
		clone = &MultiLinear[B]{
			inDims:  l.inDims.Clone(),
			outDims: l.outDims.Clone(),
			linear:  nn.NewLinear(l.inDims.NumElements(), l.outDims.NumElements(), backend),
		}
	case *Flatten[B]:
		return NewFlatten[B](), nil
	case *Chain[B]:
		layers := make([]Layer[B], len(l.layers))
		for i, child := range l.layers {
			c, err := CloneLayer(child, backend)
			if err != nil {
				return nil, errors.Wrapf(err, "chain layer %d", i)
			}
			layers[i] = c
		}
		return NewChain(layers...), nil
	default:
		return nil, errors.Wrapf(odenet.ErrNotRefinable, "%T", l)
	}
	odenet.CopyParams(clone.Parameters(), l.Parameters())
	return clone, nil
}

// LayerState returns the parameters of l keyed by name, using the layer's
// own StateDict when it has one. Conv2D and Chain children are keyed
// "weight"/"bias" and "<i>." respectively.
func LayerState[B tensor.Backend](l Layer[B]) map[string]*tensor.RawTensor {
	switch l := l.(type) {
	case interface {
		StateDict() map[string]*tensor.RawTensor
	}:
		return l.StateDict()
	case *Chain[B]:
		state := make(map[string]*tensor.RawTensor)
		for i, child := range l.layers {
			odenet.Prefixed(state, LayerState(child), fmt.Sprintf("%d.", i))
		}
		return state
	}
	state := make(map[string]*tensor.RawTensor)
	for i, p := range l.Parameters() {
		state[paramKey(i)] = p.Tensor().Raw()
	}
	return state
}

// LoadLayerState is the inverse of LayerState.
func LoadLayerState[B tensor.Backend](l Layer[B], state map[string]*tensor.RawTensor) error {
	switch l := l.(type) {
	case interface {
		LoadStateDict(map[string]*tensor.RawTensor) error
	}:
		return l.LoadStateDict(state)
	case *Chain[B]:
		for i, child := range l.layers {
			if err := LoadLayerState(child, odenet.SubState(state, fmt.Sprintf("%d.", i))); err != nil {
				return errors.Wrapf(err, "chain layer %d", i)
			}
		}
		return nil
	}
	for i, p := range l.Parameters() {
		key := paramKey(i)
		raw, ok := state[key]
		if !ok {
			return errors.Errorf("missing %s in state dict", key)
		}
		if !raw.Shape().Equal(p.Tensor().Shape()) {
			return errors.Errorf("%s shape mismatch: expected %v, got %v", key, p.Tensor().Shape(), raw.Shape())
		}
		copy(p.Tensor().Data(), raw.AsFloat32())
	}
	return nil
}

func paramKey(i int) string {
	if i == 0 {
		return "weight"
	}
	return "bias"
}
