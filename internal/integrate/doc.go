// Package integrate implements fixed-step explicit Runge-Kutta schemes over
// Born tensors.
//
// A scheme is a Butcher tableau. Each step evaluates the right-hand side
// once per stage through ordinary tensor operations, so every step is
// recorded on an autodiff tape when the backend is recording and can be
// differentiated like any other layer.
//
// Schemes are looked up by name:
//
//	scheme, err := integrate.Lookup("rk4")
//	states := integrate.Solve(scheme, f, x0, []float64{0, 0.25, 0.5, 0.75, 1})
package integrate
