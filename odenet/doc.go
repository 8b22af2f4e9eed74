// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package odenet provides refinable ODE-net layers and models for Born.
//
// An ODE-net replaces a stack of residual layers with the numerical solution
// of dx/dt = f(t, x) over [0, 1]. The parameters of f are piecewise constant
// in time. Refine doubles their temporal resolution and the number of solver
// steps, which lets a network be trained coarse-to-fine:
//
//	backend := autodiff.New(cpu.New())
//	net, err := odenet.NewDense(odenet.DenseConfig{
//	    BlockConfig: odenet.BlockConfig{TimeD: 1, NTimeSteps: 1, Scheme: "euler", Activation: odenet.ReLU},
//	    InDim: 2, OutDim: 3, Width: 4, Hidden: 8,
//	}, odenet.NewInit(0), backend)
//	finer, err := net.Refine()
//
// Training loops, evaluation and checkpointing live in the Trainer type.
// The supported integration schemes are listed by Schemes.
package odenet
