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

// ODEModel is head -> ODEBlock -> tail.
type ODEModel[B tensor.Backend] struct {
	kind    string
	head    Layer[B]
	block   *odenet.ODEBlock[B]
	tail    Layer[B]
	backend B
}

// NewODEModel assembles a model from its parts. kind names the architecture
// in checkpoint metadata.
func NewODEModel[B tensor.Backend](kind string, head Layer[B], block *odenet.ODEBlock[B], tail Layer[B], backend B) *ODEModel[B] {
	return &ODEModel[B]{kind: kind, head: head, block: block, tail: tail, backend: backend}
}

// BlockConfig holds the ODE settings shared by every ODEModel.
type BlockConfig struct {
	TimeD      int
	NTimeSteps int
	Scheme     string
	UseAdjoint bool
	Activation odenet.Activation
}

// DenseConfig configures NewDense.
type DenseConfig struct {
	BlockConfig
	InDim  int
	OutDim int
	Width  int // state dimension of the ODE
	Hidden int // hidden width of the right-hand side
}

// NewDense creates Linear(in, width) -> ODEBlock(ShallowODE) ->
// Linear(width, out).
func NewDense[B tensor.Backend](cfg DenseConfig, init *odenet.Init, backend B) (*ODEModel[B], error) {
	head := nn.NewLinear(cfg.InDim, cfg.Width, backend)
	odenet.Reset(init, head.Parameters())
	f := odenet.NewShallowODE(cfg.TimeD, cfg.Width, cfg.Hidden, cfg.Activation, init, backend)
	block, err := odenet.NewODEBlock[B](f, cfg.NTimeSteps, cfg.Scheme, cfg.UseAdjoint)
	if err != nil {
		return nil, err
	}
	tail := nn.NewLinear(cfg.Width, cfg.OutDim, backend)
	odenet.Reset(init, tail.Parameters())
	return NewODEModel[B]("dense", head, block, tail, backend), nil
}

// ConvConfig configures NewConv.
type ConvConfig struct {
	BlockConfig
	InChannels   int
	Channels     int // channels of the ODE state
	Hidden       int // hidden channels of the right-hand side
	ImageSize    int // height and width of the input
	Classes      int
	UseBatchNorm bool
	Epsilon      float64
}

// NewConv creates Conv2D(in, channels, 3x3) -> ODEBlock(ShallowConvODE) ->
// Flatten -> Linear(channels*size*size, classes).
func NewConv[B tensor.Backend](cfg ConvConfig, init *odenet.Init, backend B) (*ODEModel[B], error) {
	head := nn.NewConv2D(cfg.InChannels, cfg.Channels, 3, 3, 1, 1, true, backend)
	odenet.Reset(init, head.Parameters())
	f := odenet.NewShallowConvODE(cfg.TimeD, cfg.Channels, cfg.Hidden, cfg.Activation,
		odenet.ConvOptions{UseBatchNorms: cfg.UseBatchNorm, Epsilon: cfg.Epsilon}, init, backend)
	block, err := odenet.NewODEBlock[B](f, cfg.NTimeSteps, cfg.Scheme, cfg.UseAdjoint)
	if err != nil {
		return nil, err
	}
	linear := nn.NewLinear(cfg.Channels*cfg.ImageSize*cfg.ImageSize, cfg.Classes, backend)
	odenet.Reset(init, linear.Parameters())
	tail := NewChain[B](NewFlatten[B](), linear)
	return NewODEModel[B]("conv", head, block, tail, backend), nil
}

// Forward computes tail(ODEBlock(head(x))).
func (m *ODEModel[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return m.tail.Forward(m.block.Forward(m.head.Forward(x)))
}

// Gradients returns the loss on a batch and the gradients of every
// parameter. In adjoint mode the ODE part is differentiated by the adjoint
// sweep and the projections by their own short tapes; the result equals
// naive reverse mode.
func (m *ODEModel[B]) Gradients(x *tensor.Tensor[float32, B], target *tensor.RawTensor, criterion loss.Criterion[B]) (float32, odenet.Grads) {
	if !m.block.UseAdjoint() {
		return naiveGradients(m.backend, m.Forward, x, target, criterion)
	}

	tape := odenet.TapeOf(m.backend)
	if tape == nil {
		panic("ODEModel.Gradients: backend does not record operations (use autodiff.New)")
	}
	if !tape.IsRecording() {
		tape.StartRecording()
		defer tape.StopRecording()
	}
	tape.Clear()
	defer tape.Clear()

	restore := odenet.PauseTape(m.backend)
	states := m.block.ForwardStates(m.head.Forward(x))
	restore()

	// Tail and loss from a leaf copy of x(1).
	hT := odenet.Clone(states[len(states)-1])
	l := criterion.Forward(m.tail.Forward(hT), target)
	value := l.Data()[0]
	tailGrads := odenet.BackwardFrom(m.backend, odenet.Ones(l.Shape(), m.backend.Device()))
	grads := make(odenet.Grads)
	odenet.Accumulate(grads, tailGrads, odenet.ParamKeys(m.tail.Parameters()))
	aT, ok := tailGrads[hT.Raw()]
	if !ok {
		panic("ODEModel.Gradients: loss does not depend on the ODE output")
	}

	a0, blockGrads := m.block.Gradients(states, aT)
	odenet.Accumulate(grads, blockGrads, odenet.ParamKeys(m.block.Parameters()))

	// Head, seeded with dL/dx(0).
	tape.Clear()
	m.head.Forward(x)
	headGrads := odenet.BackwardFrom(m.backend, a0)
	odenet.Accumulate(grads, headGrads, odenet.ParamKeys(m.head.Parameters()))
	return value, grads
}

// Refine deep-copies the projections and refines the ODEBlock.
func (m *ODEModel[B]) Refine() (Network[B], error) {
	head, err := CloneLayer(m.head, m.backend)
	if err != nil {
		return nil, errors.Wrap(err, "refine head")
	}
	tail, err := CloneLayer(m.tail, m.backend)
	if err != nil {
		return nil, errors.Wrap(err, "refine tail")
	}
	return NewODEModel(m.kind, head, m.block.Refine(), tail, m.backend), nil
}

// Parameters returns head, ODE and tail parameters.
func (m *ODEModel[B]) Parameters() []*nn.Parameter[B] {
	params := append([]*nn.Parameter[B]{}, m.head.Parameters()...)
	params = append(params, m.block.Parameters()...)
	return append(params, m.tail.Parameters()...)
}

// ODEParameterCount returns the number of trainable scalars inside the
// ODEBlock.
func (m *ODEModel[B]) ODEParameterCount() int {
	return odenet.CountParameters(m.block.Parameters())
}

// ProjectionParameterCount returns the number of trainable scalars of the
// head and tail.
func (m *ODEModel[B]) ProjectionParameterCount() int {
	return odenet.CountParameters(m.head.Parameters()) + odenet.CountParameters(m.tail.Parameters())
}

// StateDict keys the parts "head.", "block." and "tail.".
func (m *ODEModel[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	odenet.Prefixed(state, LayerState(m.head), "head.")
	odenet.Prefixed(state, m.block.StateDict(), "block.")
	odenet.Prefixed(state, LayerState(m.tail), "tail.")
	return state
}

// LoadStateDict loads every part. The receiver must have the same
// architecture and time resolution as the saved model.
func (m *ODEModel[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := LoadLayerState(m.head, odenet.SubState(state, "head.")); err != nil {
		return errors.Wrap(err, "head")
	}
	if err := m.block.LoadStateDict(odenet.SubState(state, "block.")); err != nil {
		return err
	}
	return errors.Wrap(LoadLayerState(m.tail, odenet.SubState(state, "tail.")), "tail")
}

// SetTraining forwards to the ODEBlock.
func (m *ODEModel[B]) SetTraining(training bool) {
	m.block.SetTraining(training)
}

// Metadata reports the architecture and the ODE resolution.
func (m *ODEModel[B]) Metadata() map[string]string {
	return map[string]string{
		"kind":         m.kind,
		"time_d":       strconv.Itoa(m.block.TimeD()),
		"n_time_steps": strconv.Itoa(m.block.NTimeSteps()),
		"scheme":       m.block.Scheme().Name,
		"adjoint":      strconv.FormatBool(m.block.UseAdjoint()),
	}
}

// Block returns the ODEBlock.
func (m *ODEModel[B]) Block() *odenet.ODEBlock[B] { return m.block }

// Trajectory returns the ODE state at every grid point for input x.
func (m *ODEModel[B]) Trajectory(x *tensor.Tensor[float32, B]) []*tensor.Tensor[float32, B] {
	defer odenet.PauseTape(m.backend)()
	return m.block.Trajectory(m.head.Forward(x))
}

func (m *ODEModel[B]) String() string {
	return fmt.Sprintf("ODEModel(%s, %v)", m.kind, m.block)
}
