package odenet

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// ErrNotRefinable is returned when a module that is neither a Func nor a
// known cloneable layer is asked to refine.
var ErrNotRefinable = errors.New("odenet: module cannot be refined")

// Func is the right-hand side f(t, x) of an ODE layer.
//
// Refine is part of the contract. Refinable implementations (time-indexed
// layers, blocks, Sequence) return a Func with doubled time resolution that
// computes the same function. Opaque implementations (ODEify) have no time
// resolution and return a deep copy.
type Func[B tensor.Backend] interface {
	// Forward evaluates f at time t. The caller guarantees 0 <= t <= 1.
	Forward(t float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters.
	Parameters() []*nn.Parameter[B]

	// StateDict returns parameters and buffers keyed by name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from a state dict with matching shapes.
	LoadStateDict(state map[string]*tensor.RawTensor) error

	// Refine returns a new Func and leaves the receiver untouched.
	Refine() Func[B]
}

// Refine doubles the time resolution of f. See Func.
func Refine[B tensor.Backend](f Func[B]) Func[B] {
	return f.Refine()
}

// StatTracker is implemented by Funcs that carry normalization running
// statistics. SetTrackRunningStats returns the previous setting.
type StatTracker interface {
	SetTrackRunningStats(track bool) bool
}

// FreezeStats turns off running-stat tracking on f, if it has any, and
// returns a function that restores it.
func FreezeStats(f any) func() {
	st, ok := f.(StatTracker)
	if !ok {
		return func() {}
	}
	prev := st.SetTrackRunningStats(false)
	return func() { st.SetTrackRunningStats(prev) }
}

// Trainable is implemented by Funcs whose forward pass differs between
// training and evaluation.
type Trainable interface {
	SetTraining(training bool)
}

// SetTraining switches f between training and evaluation mode, if it
// distinguishes them.
func SetTraining(f any, training bool) {
	if tr, ok := f.(Trainable); ok {
		tr.SetTraining(training)
	}
}

// Resolution returns the number of time slices of f, the largest among its
// children for containers, or 0 for opaque Funcs.
func Resolution(f any) int {
	if r, ok := f.(interface{ TimeD() int }); ok {
		return r.TimeD()
	}
	return 0
}

// Sequence composes Funcs: x -> f_n(t, ... f_1(t, x)).
type Sequence[B tensor.Backend] struct {
	funcs []Func[B]
}

// NewSequence creates a Sequence of funcs applied in order.
func NewSequence[B tensor.Backend](funcs ...Func[B]) *Sequence[B] {
	return &Sequence[B]{funcs: funcs}
}

// Forward applies every child at the same time t.
func (s *Sequence[B]) Forward(t float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	for _, f := range s.funcs {
		x = f.Forward(t, x)
	}
	return x
}

// Parameters returns the parameters of all children, in order.
func (s *Sequence[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, f := range s.funcs {
		params = append(params, f.Parameters()...)
	}
	return params
}

// StateDict prefixes each child's keys with its index.
func (s *Sequence[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i, f := range s.funcs {
		for k, v := range f.StateDict() {
			state[fmt.Sprintf("%d.%s", i, k)] = v
		}
	}
	return state
}

// LoadStateDict loads each child from the keys carrying its index prefix.
func (s *Sequence[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for i, f := range s.funcs {
		if err := f.LoadStateDict(SubState(state, fmt.Sprintf("%d.", i))); err != nil {
			return errors.Wrapf(err, "sequence child %d", i)
		}
	}
	return nil
}

// Refine refines every child and keeps their order.
func (s *Sequence[B]) Refine() Func[B] {
	funcs := make([]Func[B], len(s.funcs))
	for i, f := range s.funcs {
		funcs[i] = f.Refine()
	}
	return NewSequence(funcs...)
}

// Len returns the number of children.
func (s *Sequence[B]) Len() int {
	return len(s.funcs)
}

// Func returns child i.
func (s *Sequence[B]) Func(i int) Func[B] {
	return s.funcs[i]
}

// TimeD returns the largest time resolution among the children.
func (s *Sequence[B]) TimeD() int {
	res := 0
	for _, f := range s.funcs {
		res = max(res, Resolution(f))
	}
	return res
}

// SetTrackRunningStats forwards to every child that tracks statistics.
func (s *Sequence[B]) SetTrackRunningStats(track bool) bool {
	prev := false
	for _, f := range s.funcs {
		if st, ok := f.(StatTracker); ok {
			prev = st.SetTrackRunningStats(track) || prev
		}
	}
	return prev
}

// SetTraining forwards to every child.
func (s *Sequence[B]) SetTraining(training bool) {
	for _, f := range s.funcs {
		SetTraining(f, training)
	}
}

// Module is the subset of a Born module that ODEify needs.
type Module[B tensor.Backend] interface {
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Parameters() []*nn.Parameter[B]
}

// ODEify adapts a time-independent Born module to a Func by ignoring t.
//
// It is the opaque variant: it has no time resolution, so Refine returns a
// deep copy built with the constructor it was created from.
type ODEify[B tensor.Backend] struct {
	module Module[B]
	build  func() Module[B]
}

// NewODEify wraps the module returned by build.
func NewODEify[B tensor.Backend](build func() Module[B]) *ODEify[B] {
	return &ODEify[B]{module: build(), build: build}
}

// Forward ignores t and applies the wrapped module.
func (o *ODEify[B]) Forward(_ float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return o.module.Forward(x)
}

// Parameters returns the wrapped module's parameters.
func (o *ODEify[B]) Parameters() []*nn.Parameter[B] {
	return o.module.Parameters()
}

// StateDict keys the wrapped parameters by position.
func (o *ODEify[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i, p := range o.module.Parameters() {
		state[fmt.Sprintf("param.%d", i)] = p.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies positional parameters into the wrapped module.
func (o *ODEify[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for i, p := range o.module.Parameters() {
		if err := loadInto(state, fmt.Sprintf("param.%d", i), p.Tensor()); err != nil {
			return err
		}
	}
	return nil
}

// Refine returns a deep copy.
func (o *ODEify[B]) Refine() Func[B] {
	clone := NewODEify(o.build)
	CopyParams(clone.module.Parameters(), o.module.Parameters())
	return clone
}

// Module returns the wrapped module.
func (o *ODEify[B]) Module() Module[B] {
	return o.module
}

// SubState returns the entries of state whose key starts with prefix, with
// the prefix removed.
func SubState(state map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor)
	for k, v := range state {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			sub[rest] = v
		}
	}
	return sub
}

// Prefixed copies state into dst with prefix prepended to every key.
func Prefixed(dst, state map[string]*tensor.RawTensor, prefix string) {
	for k, v := range state {
		dst[prefix+k] = v
	}
}
