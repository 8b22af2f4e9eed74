// Package odenet implements time-discretized ODE-net layers for the refinenet
// project.
//
// The right-hand side of an ODE layer, f(t, x), is built from time-indexed
// layers whose parameters are piecewise constant over a uniform partition of
// [0, 1]. An ODEBlock integrates f from t=0 to t=1 with a fixed-step scheme.
//
// Refine doubles the temporal resolution of a Func. Every parameter slice i
// becomes slices 2i and 2i+1, so the refined Func computes exactly the same
// function at the moment of refinement:
//
//	f := odenet.NewShallowODE(1, 4, 8, odenet.ReLU, init, backend)
//	block, err := odenet.NewODEBlock[B](f, 1, "euler", false)
//	finer := block.Refine() // time_d = 2, n_time_steps = 2
//
// Time values passed to Forward must satisfy 0 <= t <= 1. Only t == 1 is
// clamped to the last slice; other out-of-range values are not guarded.
package odenet
