package odenet

import (
	"fmt"
	"math"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// TimeConv2D is a stride-1 2D convolution whose kernels are piecewise
// constant in time.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, width, width] per slice
// Output shape: [batch, out_channels, out_h, out_w]
//
// With padding = (width-1)/2 the spatial size is preserved, which is what an
// ODE right-hand side needs.
type TimeConv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	width       int
	padding     int
	bank        *ParameterBank[B]
	backend     B
}

// NewTimeConv2D creates a TimeConv2D with timeD slices. Kernels are drawn
// from N(0, 1/out_channels); biases start at zero.
func NewTimeConv2D[B tensor.Backend](
	timeD, inChannels, outChannels int,
	width, padding int,
	init *Init,
	backend B,
) *TimeConv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("TimeConv2D: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if width <= 0 {
		panic(fmt.Sprintf("TimeConv2D: invalid kernel width %d", width))
	}
	if padding < 0 {
		panic(fmt.Sprintf("TimeConv2D: invalid padding %d", padding))
	}
	bank := NewParameterBank("conv2d", timeD,
		tensor.Shape{outChannels, inChannels, width, width},
		tensor.Shape{outChannels},
		1.0/math.Sqrt(float64(outChannels)),
		init, backend)
	return &TimeConv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		width:       width,
		padding:     padding,
		bank:        bank,
		backend:     backend,
	}
}

// Forward convolves x with the kernel active at t and adds its bias.
func (c *TimeConv2D[B]) Forward(t float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("TimeConv2D.Forward: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("TimeConv2D.Forward: input channels %d != expected %d", shape[1], c.inChannels))
	}
	w, b := c.bank.At(t)
	out := tensor.New[float32, B](c.backend.Conv2D(x.Raw(), w.Raw(), 1, c.padding), c.backend)
	return out.Add(b.Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns every kernel and bias slice.
func (c *TimeConv2D[B]) Parameters() []*nn.Parameter[B] {
	return c.bank.Parameters()
}

// StateDict returns the slices of the bank.
func (c *TimeConv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return c.bank.StateDict()
}

// LoadStateDict loads the slices of the bank.
func (c *TimeConv2D[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return c.bank.LoadStateDict(state)
}

// Refine returns a TimeConv2D with 2*time_d slices computing the same
// function.
func (c *TimeConv2D[B]) Refine() Func[B] {
	return c.RefineConv()
}

// RefineConv is Refine with the concrete return type.
func (c *TimeConv2D[B]) RefineConv() *TimeConv2D[B] {
	refined := *c
	refined.bank = c.bank.Refine()
	return &refined
}

// TimeD returns the number of time slices.
func (c *TimeConv2D[B]) TimeD() int {
	return c.bank.TimeD()
}

// Bank returns the parameter bank.
func (c *TimeConv2D[B]) Bank() *ParameterBank[B] {
	return c.bank
}

// String returns a string representation of the layer.
func (c *TimeConv2D[B]) String() string {
	return fmt.Sprintf("TimeConv2D(time_d=%d, in_channels=%d, out_channels=%d, width=%d, padding=%d)",
		c.TimeD(), c.inChannels, c.outChannels, c.width, c.padding)
}
