package odenet

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// Block is the shallow right-hand side
//
//	f(t, x) = epsilon * N2(act(L2(t, N1(act(L1(t, x))))))
//
// where L1, L2 are time-indexed layers (dense or convolutional) and N1, N2
// are optional BatchNorms. It is the ODE counterpart of a residual block.
type Block[B tensor.Backend] struct {
	l1, l2   Func[B]
	act      Activation
	bn1, bn2 *BatchNorm[B]
	epsilon  float64
	backend  B
}

// NewShallowODE creates a dense Block mapping dim -> hidden -> dim without
// normalization.
func NewShallowODE[B tensor.Backend](timeD, dim, hidden int, act Activation, init *Init, backend B) *Block[B] {
	return &Block[B]{
		l1:      NewTimeLinear(timeD, dim, hidden, init, backend),
		l2:      NewTimeLinear(timeD, hidden, dim, init, backend),
		act:     act,
		epsilon: 1,
		backend: backend,
	}
}

// ConvOptions configures NewShallowConvODE.
type ConvOptions struct {
	Width         int     // kernel width (default 3)
	Padding       int     // zero padding (default 1)
	Epsilon       float64 // output scale (default 1)
	UseBatchNorms bool    // insert a BatchNorm after each activation
}

// NewShallowConvODE creates a convolutional Block mapping
// channels -> hidden -> channels.
func NewShallowConvODE[B tensor.Backend](
	timeD, channels, hidden int,
	act Activation,
	opts ConvOptions,
	init *Init,
	backend B,
) *Block[B] {
	if opts.Width == 0 {
		opts.Width, opts.Padding = 3, 1
	}
	if opts.Epsilon == 0 {
		opts.Epsilon = 1
	}
	b := &Block[B]{
		l1:      NewTimeConv2D(timeD, channels, hidden, opts.Width, opts.Padding, init, backend),
		l2:      NewTimeConv2D(timeD, hidden, channels, opts.Width, opts.Padding, init, backend),
		act:     act,
		epsilon: opts.Epsilon,
		backend: backend,
	}
	if opts.UseBatchNorms {
		b.bn1 = NewBatchNorm("bn1", hidden, backend)
		b.bn2 = NewBatchNorm("bn2", channels, backend)
	}
	return b
}

// Forward evaluates f(t, x).
func (b *Block[B]) Forward(t float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	h := Activate(b.act, b.l1.Forward(t, x))
	if b.bn1 != nil {
		h = b.bn1.Forward(h)
	}
	y := Activate(b.act, b.l2.Forward(t, h))
	if b.bn2 != nil {
		y = b.bn2.Forward(y)
	}
	if b.epsilon != 1 {
		y = y.Mul(scalarLike(b.epsilon, y))
	}
	return y
}

// Parameters returns the parameters of L1, N1, L2, N2 in that order.
func (b *Block[B]) Parameters() []*nn.Parameter[B] {
	params := b.l1.Parameters()
	if b.bn1 != nil {
		params = append(params, b.bn1.Parameters()...)
	}
	params = append(params, b.l2.Parameters()...)
	if b.bn2 != nil {
		params = append(params, b.bn2.Parameters()...)
	}
	return params
}

// StateDict returns the state of the layers and norms under "L1.", "L2.",
// "bn1." and "bn2.".
func (b *Block[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	Prefixed(state, b.l1.StateDict(), "L1.")
	Prefixed(state, b.l2.StateDict(), "L2.")
	if b.bn1 != nil {
		Prefixed(state, b.bn1.StateDict(), "bn1.")
		Prefixed(state, b.bn2.StateDict(), "bn2.")
	}
	return state
}

// LoadStateDict loads the layers and norms.
func (b *Block[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := b.l1.LoadStateDict(SubState(state, "L1.")); err != nil {
		return errors.Wrap(err, "L1")
	}
	if err := b.l2.LoadStateDict(SubState(state, "L2.")); err != nil {
		return errors.Wrap(err, "L2")
	}
	if b.bn1 == nil {
		return nil
	}
	if err := b.bn1.LoadStateDict(SubState(state, "bn1.")); err != nil {
		return errors.Wrap(err, "bn1")
	}
	if err := b.bn2.LoadStateDict(SubState(state, "bn2.")); err != nil {
		return errors.Wrap(err, "bn2")
	}
	return nil
}

// Refine returns a Block whose layers have twice the time resolution. The
// norms are copied with their running statistics, which are frozen on the
// receiver while the copy is taken.
func (b *Block[B]) Refine() Func[B] {
	track := b.SetTrackRunningStats(false)
	defer b.SetTrackRunningStats(track)

	refined := &Block[B]{
		l1:      b.l1.Refine(),
		l2:      b.l2.Refine(),
		act:     b.act,
		epsilon: b.epsilon,
		backend: b.backend,
	}
	if b.bn1 != nil {
		refined.bn1 = b.bn1.Clone()
		refined.bn2 = b.bn2.Clone()
		refined.SetTrackRunningStats(track)
	}
	return refined
}

// SetTrackRunningStats freezes or unfreezes both norms.
func (b *Block[B]) SetTrackRunningStats(track bool) bool {
	if b.bn1 == nil {
		return false
	}
	prev := b.bn1.SetTrackRunningStats(track)
	b.bn2.SetTrackRunningStats(track)
	return prev
}

// SetTraining switches both norms between batch and running statistics.
func (b *Block[B]) SetTraining(training bool) {
	if b.bn1 != nil {
		b.bn1.SetTraining(training)
		b.bn2.SetTraining(training)
	}
}

// TimeD returns the time resolution of the layers.
func (b *Block[B]) TimeD() int {
	return Resolution(b.l1)
}

// Layers returns L1 and L2.
func (b *Block[B]) Layers() (Func[B], Func[B]) {
	return b.l1, b.l2
}

// Norms returns N1 and N2, or nil when normalization is disabled.
func (b *Block[B]) Norms() (*BatchNorm[B], *BatchNorm[B]) {
	return b.bn1, b.bn2
}
