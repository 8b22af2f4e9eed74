// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package odenet_test

import (
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/refinenet/odenet"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func TestPublicAPI_DenseRefine(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net, err := odenet.NewDense[Backend](odenet.DenseConfig{
		BlockConfig: odenet.BlockConfig{TimeD: 1, NTimeSteps: 1, Scheme: "euler", Activation: odenet.ReLU},
		InDim:       2, OutDim: 3, Width: 4, Hidden: 8,
	}, odenet.NewInit(1), backend)
	require.NoError(t, err)

	finer, err := net.Refine()
	require.NoError(t, err)
	assert.Greater(t, odenet.ParameterCount(finer), odenet.ParameterCount[Backend](net))

	x := tensor.Zeros[float32](tensor.Shape{5, 2}, backend)
	assert.Equal(t, tensor.Shape{5, 3}, finer.Forward(x).Shape())
}

func TestPublicAPI_Schemes(t *testing.T) {
	assert.ElementsMatch(t, []string{"euler", "midpoint", "rk4", "rk4_38"}, odenet.Schemes())
	assert.InDelta(t, 1e-4, odenet.StageLR(1e-3, 2), 1e-12)

	backend := autodiff.New(cpu.New())
	_, err := odenet.NewCriterion[Backend]("hinge", backend)
	assert.Error(t, err)
}
