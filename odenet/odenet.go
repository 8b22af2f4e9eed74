// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package odenet

import (
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/refinenet/internal/integrate"
	"github.com/born-ml/refinenet/internal/loss"
	"github.com/born-ml/refinenet/internal/model"
	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/born-ml/refinenet/internal/train"
)

// Activation names a pointwise nonlinearity.
type Activation = odenet.Activation

// Supported activations.
const (
	ReLU    = odenet.ReLU
	Tanh    = odenet.Tanh
	Sigmoid = odenet.Sigmoid
)

// Init is a seeded parameter initializer.
type Init = odenet.Init

// NewInit creates an initializer seeded with seed.
func NewInit(seed uint64) *Init {
	return odenet.NewInit(seed)
}

// Building blocks

// Func is the right-hand side f(t, x) of an ODE layer.
type Func[B tensor.Backend] = odenet.Func[B]

// TimeLinear is a linear layer whose parameters are piecewise constant in time.
type TimeLinear[B tensor.Backend] = odenet.TimeLinear[B]

// NewTimeLinear creates a TimeLinear with timeD time slices.
func NewTimeLinear[B tensor.Backend](timeD, inFeatures, outFeatures int, init *Init, backend B) *TimeLinear[B] {
	return odenet.NewTimeLinear(timeD, inFeatures, outFeatures, init, backend)
}

// TimeConv2D is a 2D convolution whose parameters are piecewise constant in time.
type TimeConv2D[B tensor.Backend] = odenet.TimeConv2D[B]

// Block is the shallow two-layer right-hand side.
type Block[B tensor.Backend] = odenet.Block[B]

// ConvOptions configures NewShallowConvODE.
type ConvOptions = odenet.ConvOptions

// NewShallowODE creates a dense shallow right-hand side.
func NewShallowODE[B tensor.Backend](timeD, dim, hidden int, act Activation, init *Init, backend B) *Block[B] {
	return odenet.NewShallowODE(timeD, dim, hidden, act, init, backend)
}

// NewShallowConvODE creates a convolutional shallow right-hand side.
func NewShallowConvODE[B tensor.Backend](timeD, channels, hidden int, act Activation, opts ConvOptions, init *Init, backend B) *Block[B] {
	return odenet.NewShallowConvODE(timeD, channels, hidden, act, opts, init, backend)
}

// ODEBlock integrates a Func from t=0 to t=1.
type ODEBlock[B tensor.Backend] = odenet.ODEBlock[B]

// NewODEBlock creates an ODEBlock taking nTimeSteps steps of the named scheme.
//
// Example:
//
//	block, err := odenet.NewODEBlock[B](f, 4, "rk4", true)
func NewODEBlock[B tensor.Backend](f Func[B], nTimeSteps int, scheme string, useAdjoint bool) (*ODEBlock[B], error) {
	return odenet.NewODEBlock(f, nTimeSteps, scheme, useAdjoint)
}

// ErrNotRefinable is returned when a module has no refinement.
var ErrNotRefinable = odenet.ErrNotRefinable

// Schemes returns the names of the supported integration schemes.
func Schemes() []string {
	return integrate.Names()
}

// Models

// Network is a trainable, refinable model.
type Network[B tensor.Backend] = model.Network[B]

// BlockConfig configures the ODE block of a model.
type BlockConfig = model.BlockConfig

// DenseConfig configures NewDense.
type DenseConfig = model.DenseConfig

// ConvConfig configures NewConv.
type ConvConfig = model.ConvConfig

// ODEModel is a projection head, an ODEBlock and an output tail.
type ODEModel[B tensor.Backend] = model.ODEModel[B]

// NewDense creates a dense ODE model.
func NewDense[B tensor.Backend](cfg DenseConfig, init *Init, backend B) (*ODEModel[B], error) {
	return model.NewDense(cfg, init, backend)
}

// NewConv creates a convolutional ODE model for image classification.
func NewConv[B tensor.Backend](cfg ConvConfig, init *Init, backend B) (*ODEModel[B], error) {
	return model.NewConv(cfg, init, backend)
}

// MLP is a plain multilayer perceptron. Its Refine returns a deep copy.
type MLP[B tensor.Backend] = model.MLP[B]

// NewMLP creates an MLP with the given layer widths.
func NewMLP[B tensor.Backend](widths []int, act Activation, init *Init, backend B) *MLP[B] {
	return model.NewMLP(widths, act, init, backend)
}

// NewSkipMLP creates the residual shallow baseline x + mlp(x).
func NewSkipMLP[B tensor.Backend](dim, hidden int, act Activation, init *Init, backend B) *MLP[B] {
	return model.NewSkipMLP(dim, hidden, act, init, backend)
}

// MultiLinear is a Linear layer over trailing dimensions of any rank.
type MultiLinear[B tensor.Backend] = model.MultiLinear[B]

// NewMultiLinear creates a MultiLinear from inDims to outDims.
func NewMultiLinear[B tensor.Backend](inDims, outDims []int, init *Init, backend B) *MultiLinear[B] {
	return model.NewMultiLinear(inDims, outDims, init, backend)
}

// NewMultiLinearODE wraps a MultiLinear on dims as a time-independent Func.
func NewMultiLinearODE[B tensor.Backend](dims []int, init *Init, backend B) Func[B] {
	return model.NewMultiLinearODE(dims, init, backend)
}

// ParameterCount returns the number of scalar parameters of net.
func ParameterCount[B tensor.Backend](net Network[B]) int {
	return model.ParameterCount(net)
}

// Training

// Criterion is a loss function.
type Criterion[B tensor.Backend] = loss.Criterion[B]

// NewCriterion returns the loss named "cross_entropy" or "mse".
func NewCriterion[B tensor.Backend](name string, backend B) (Criterion[B], error) {
	return loss.New(name, backend)
}

// Trainer runs training loops and the refinement curriculum.
type Trainer[B tensor.Backend] = train.Trainer[B]

// History records per-step losses and the steps at which stages ended.
type History = train.History

// Metrics is the result of an evaluation pass.
type Metrics = train.Metrics

// StageLR returns the learning rate used at the given curriculum stage.
func StageLR(base float64, stage int) float64 {
	return train.StageLR(base, stage)
}
