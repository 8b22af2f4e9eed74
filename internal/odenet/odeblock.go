package odenet

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/refinenet/internal/integrate"
	"github.com/pkg/errors"
)

// ODEBlock integrates dx/dt = f(t, x) from t=0 to t=1 on a uniform grid of
// nTimeSteps steps and returns x(1).
//
// In naive mode every solver step is recorded on the autodiff tape. In
// adjoint mode Forward runs with the tape paused and nothing is retained;
// a training step takes the grid states from ForwardStates and hands them to
// Gradients, which replays the steps one at a time, from last to first, and
// returns the same gradients as naive reverse mode while holding only one
// step's graph at a time.
type ODEBlock[B tensor.Backend] struct {
	f          Func[B]
	nTimeSteps int
	ts         []float64
	scheme     *integrate.Scheme
	useAdjoint bool
}

// NewODEBlock creates an ODEBlock over f. scheme is one of integrate.Names().
func NewODEBlock[B tensor.Backend](f Func[B], nTimeSteps int, scheme string, useAdjoint bool) (*ODEBlock[B], error) {
	s, err := integrate.Lookup(scheme)
	if err != nil {
		return nil, err
	}
	if nTimeSteps < 1 {
		return nil, errors.Errorf("odenet: n_time_steps must be >= 1, got %d", nTimeSteps)
	}
	return &ODEBlock[B]{
		f:          f,
		nTimeSteps: nTimeSteps,
		ts:         Linspace(nTimeSteps),
		scheme:     s,
		useAdjoint: useAdjoint,
	}, nil
}

// Forward returns x(1).
func (o *ODEBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !o.useAdjoint {
		for n := 0; n < o.nTimeSteps; n++ {
			x = o.step(n, x)
		}
		return x
	}
	return o.ForwardStates(x)[o.nTimeSteps]
}

// ForwardStates integrates with the tape paused and returns the nTimeSteps+1
// grid states. states[0] is x. Running statistics are updated as in Forward.
func (o *ODEBlock[B]) ForwardStates(x *tensor.Tensor[float32, B]) []*tensor.Tensor[float32, B] {
	defer PauseTape(x.Backend())()
	return integrate.Solve(o.scheme, o.f.Forward, x, o.ts)
}

// Trajectory returns the state at every grid point. It does not record on
// the tape and leaves normalization statistics untouched.
func (o *ODEBlock[B]) Trajectory(x *tensor.Tensor[float32, B]) []*tensor.Tensor[float32, B] {
	defer FreezeStats(o.f)()
	return o.ForwardStates(x)
}

// Gradients runs the adjoint sweep over states, the output of ForwardStates,
// seeded with aT = dL/dx(1). It returns dL/dx(0) and the gradients of the
// parameters of f.
//
// Each step is re-recorded from a fresh copy of its input state, so the tape
// of backend is cleared on every step and is empty on return. Running
// statistics are frozen during the replay.
func (o *ODEBlock[B]) Gradients(states []*tensor.Tensor[float32, B], aT *tensor.RawTensor) (*tensor.RawTensor, Grads) {
	if len(states) != o.nTimeSteps+1 {
		panic(fmt.Sprintf("ODEBlock.Gradients: expected %d states, got %d", o.nTimeSteps+1, len(states)))
	}
	backend := states[0].Backend()
	tape := TapeOf(backend)
	if tape == nil {
		panic("ODEBlock.Gradients: backend does not record operations (use autodiff.New)")
	}
	defer FreezeStats(o.f)()
	if !tape.IsRecording() {
		tape.StartRecording()
		defer tape.StopRecording()
	}

	keys := ParamKeys(o.f.Parameters())
	grads := make(Grads, len(keys))
	a := aT
	for n := o.nTimeSteps - 1; n >= 0; n-- {
		tape.Clear()
		xn := Clone(states[n])
		o.step(n, xn)
		stepGrads := tape.Backward(a, backend)
		Accumulate(grads, stepGrads, keys)
		an, ok := stepGrads[xn.Raw()]
		if !ok {
			panic("ODEBlock.Gradients: no gradient reached the step input")
		}
		a = cloneRaw(an)
	}
	tape.Clear()
	return a, grads
}

func (o *ODEBlock[B]) step(n int, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return integrate.Step(o.scheme, o.f.Forward, o.ts[n], o.ts[n+1]-o.ts[n], x)
}

// Refine returns an ODEBlock over f.Refine() with twice as many time steps,
// the same scheme and the same adjoint mode.
func (o *ODEBlock[B]) Refine() *ODEBlock[B] {
	n := 2 * o.nTimeSteps
	return &ODEBlock[B]{
		f:          o.f.Refine(),
		nTimeSteps: n,
		ts:         Linspace(n),
		scheme:     o.scheme,
		useAdjoint: o.useAdjoint,
	}
}

// SetNTimeSteps changes the number of solver steps and rebuilds the grid.
func (o *ODEBlock[B]) SetNTimeSteps(n int) {
	o.nTimeSteps = n
	o.ts = Linspace(n)
}

// NTimeSteps returns the number of solver steps.
func (o *ODEBlock[B]) NTimeSteps() int { return o.nTimeSteps }

// Times returns a copy of the grid.
func (o *ODEBlock[B]) Times() []float64 { return append([]float64(nil), o.ts...) }

// Scheme returns the integration scheme.
func (o *ODEBlock[B]) Scheme() *integrate.Scheme { return o.scheme }

// UseAdjoint reports whether gradients come from the adjoint sweep.
func (o *ODEBlock[B]) UseAdjoint() bool { return o.useAdjoint }

// Func returns the right-hand side.
func (o *ODEBlock[B]) Func() Func[B] { return o.f }

// TimeD returns the time resolution of the right-hand side.
func (o *ODEBlock[B]) TimeD() int { return Resolution(o.f) }

// Parameters returns the parameters of f.
func (o *ODEBlock[B]) Parameters() []*nn.Parameter[B] { return o.f.Parameters() }

// StateDict returns the state of f under "net.".
func (o *ODEBlock[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	Prefixed(state, o.f.StateDict(), "net.")
	return state
}

// LoadStateDict loads f from the keys under "net.".
func (o *ODEBlock[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return errors.Wrap(o.f.LoadStateDict(SubState(state, "net.")), "ode block")
}

// SetTraining forwards to f.
func (o *ODEBlock[B]) SetTraining(training bool) { SetTraining(o.f, training) }

func (o *ODEBlock[B]) String() string {
	return fmt.Sprintf("ODEBlock(n_time_steps=%d, scheme=%s, adjoint=%v, time_d=%d)",
		o.nTimeSteps, o.scheme.Name, o.useAdjoint, o.TimeD())
}
