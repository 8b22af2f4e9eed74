package integrate

import (
	"github.com/born-ml/born/tensor"
)

// Func is a right-hand side dx/dt = f(t, x).
type Func[B tensor.Backend] func(t float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

// Step advances x from t by h with scheme s.
func Step[B tensor.Backend](s *Scheme, f Func[B], t, h float64, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	k := make([]*tensor.Tensor[float32, B], s.Stages)
	for i := range k {
		xi := x
		if inc := combine(s.A[i], k[:i], h); inc != nil {
			xi = x.Add(inc)
		}
		k[i] = f(t+s.C[i]*h, xi)
	}
	return x.Add(combine(s.B, k, h))
}

// Solve integrates from ts[0] through every point of ts and returns the
// states at each point; states[0] is x0.
func Solve[B tensor.Backend](s *Scheme, f Func[B], x0 *tensor.Tensor[float32, B], ts []float64) []*tensor.Tensor[float32, B] {
	states := make([]*tensor.Tensor[float32, B], len(ts))
	states[0] = x0
	for n := 1; n < len(ts); n++ {
		states[n] = Step(s, f, ts[n-1], ts[n]-ts[n-1], states[n-1])
	}
	return states
}

// combine returns h * sum_j w[j]*k[j], skipping zero weights, or nil when
// every weight is zero.
func combine[B tensor.Backend](w []float64, k []*tensor.Tensor[float32, B], h float64) *tensor.Tensor[float32, B] {
	var sum *tensor.Tensor[float32, B]
	for j, wj := range w {
		if wj == 0 {
			continue
		}
		term := k[j].Mul(scalarLike(wj*h, k[j]))
		if sum == nil {
			sum = term
		} else {
			sum = sum.Add(term)
		}
	}
	return sum
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
