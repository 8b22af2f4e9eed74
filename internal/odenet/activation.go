package odenet

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// Activation names a pointwise nonlinearity.
type Activation string

// Supported activations.
const (
	ReLU    Activation = "relu"
	Tanh    Activation = "tanh"
	Sigmoid Activation = "sigmoid"
)

// ParseActivation validates an activation name.
func ParseActivation(name string) (Activation, error) {
	switch a := Activation(name); a {
	case ReLU, Tanh, Sigmoid:
		return a, nil
	}
	return "", errors.Errorf("unknown activation %q (want relu, tanh or sigmoid)", name)
}

// Activate applies act to x element-wise. The backend must record the
// activation (autodiff.Backend does).
func Activate[B tensor.Backend](act Activation, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	switch act {
	case ReLU:
		return nn.ReLUFunc(x)
	case Tanh:
		return nn.NewTanh[B]().Forward(x)
	case Sigmoid:
		return nn.SigmoidFunc(x)
	default:
		panic("odenet: unknown activation " + string(act))
	}
}
