package odenet

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// TapeBackend is implemented by backends that record operations for
// reverse-mode differentiation (autodiff.Backend).
type TapeBackend interface {
	Tape() *autodiff.GradientTape
}

// TapeOf returns the gradient tape of backend, or nil when the backend does
// not record operations.
func TapeOf[B tensor.Backend](backend B) *autodiff.GradientTape {
	if tb, ok := any(backend).(TapeBackend); ok {
		return tb.Tape()
	}
	return nil
}

// PauseTape stops recording on backend's tape and returns a function that
// restores the previous recording state.
func PauseTape[B tensor.Backend](backend B) func() {
	tape := TapeOf(backend)
	if tape == nil || !tape.IsRecording() {
		return func() {}
	}
	tape.StopRecording()
	return tape.StartRecording
}

// Grads maps a parameter or input tensor to its accumulated gradient.
type Grads = map[*tensor.RawTensor]*tensor.RawTensor

// BackwardFrom walks backend's tape in reverse, seeding the last recorded
// operation with seed. It returns an empty map when nothing was recorded.
func BackwardFrom[B tensor.Backend](backend B, seed *tensor.RawTensor) Grads {
	tape := TapeOf(backend)
	if tape == nil {
		panic("odenet: backward requires a recording backend (use autodiff.New)")
	}
	return tape.Backward(seed, backend)
}

// Ones returns a float32 raw tensor of ones, used to seed a scalar loss.
func Ones(shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		panic(err)
	}
	data := raw.AsFloat32()
	for i := range data {
		data[i] = 1
	}
	return raw
}

// Accumulate adds the gradients of keys found in src into dst. New entries
// are copied, so dst never aliases buffers owned by a tape.
func Accumulate(dst, src Grads, keys []*tensor.RawTensor) {
	for _, k := range keys {
		g, ok := src[k]
		if !ok || g == nil {
			continue
		}
		existing, ok := dst[k]
		if !ok {
			dst[k] = cloneRaw(g)
			continue
		}
		addInto(existing, g)
	}
}

// ParamKeys returns the raw tensors of params, the keys under which the tape
// and the optimizer find their gradients.
func ParamKeys[B tensor.Backend](params []*nn.Parameter[B]) []*tensor.RawTensor {
	keys := make([]*tensor.RawTensor, len(params))
	for i, p := range params {
		keys[i] = p.Tensor().Raw()
	}
	return keys
}

// Clone returns a deep copy of t backed by a freshly allocated buffer.
func Clone[B tensor.Backend](t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return tensor.New[float32, B](cloneRaw(t.Raw()), t.Backend())
}

// CopyParams copies the values of src into dst, pairwise.
func CopyParams[B tensor.Backend](dst, src []*nn.Parameter[B]) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("odenet: parameter count mismatch: %d != %d", len(dst), len(src)))
	}
	for i := range src {
		d, s := dst[i].Tensor(), src[i].Tensor()
		if !d.Shape().Equal(s.Shape()) {
			panic(fmt.Sprintf("odenet: parameter %q shape %v != %v", src[i].Name(), d.Shape(), s.Shape()))
		}
		copy(d.Data(), s.Data())
	}
}

// CountParameters returns the number of scalar values in params.
func CountParameters[B tensor.Backend](params []*nn.Parameter[B]) int {
	total := 0
	for _, p := range params {
		total += p.Tensor().Shape().NumElements()
	}
	return total
}

func cloneRaw(src *tensor.RawTensor) *tensor.RawTensor {
	dst, err := tensor.NewRaw(src.Shape(), src.DType(), src.Device())
	if err != nil {
		panic(err)
	}
	copy(dst.AsFloat32(), src.AsFloat32())
	return dst
}

func addInto(dst, src *tensor.RawTensor) {
	d, s := dst.AsFloat32(), src.AsFloat32()
	if len(d) != len(s) {
		panic(fmt.Sprintf("odenet: gradient size mismatch: %d != %d", len(d), len(s)))
	}
	for i := range d {
		d[i] += s[i]
	}
}

// scalarLike returns v as a tensor of x's rank with every dimension 1, so
// the broadcast in Mul reduces back cleanly on backward.
func scalarLike[B tensor.Backend](v float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := make(tensor.Shape, len(x.Shape()))
	for i := range shape {
		shape[i] = 1
	}
	return tensor.Full[float32](shape, float32(v), x.Backend())
}
