package train_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/refinenet/internal/data"
	"github.com/born-ml/refinenet/internal/loss"
	"github.com/born-ml/refinenet/internal/model"
	"github.com/born-ml/refinenet/internal/odenet"
	"github.com/born-ml/refinenet/internal/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func newDense(t *testing.T, backend Backend, seed uint64, adjoint bool) *model.ODEModel[Backend] {
	t.Helper()
	m, err := model.NewDense(model.DenseConfig{
		BlockConfig: model.BlockConfig{
			TimeD: 1, NTimeSteps: 1, Scheme: "euler", UseAdjoint: adjoint, Activation: odenet.ReLU,
		},
		InDim: 2, OutDim: 3, Width: 4, Hidden: 6,
	}, odenet.NewInit(seed), backend)
	require.NoError(t, err)
	return m
}

func newLoader(t *testing.T, backend Backend, samples, batchSize int) *data.DataLoader[Backend] {
	t.Helper()
	l, err := data.NewLoader(data.Blobs(1, samples, 2, 3), batchSize, true, 7, backend)
	require.NoError(t, err)
	return l
}

func TestStageLR(t *testing.T) {
	want := []float64{1, 0.1, 0.1, 0.01, 0.01, 0.001}
	for i, w := range want {
		assert.InDelta(t, w, train.StageLR(1, i), 1e-15, "stage %d", i)
	}
	assert.InDelta(t, 3e-4, train.StageLR(3e-3, 1), 1e-15)
}

func TestTrainAdapt_TwoStages(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tr := &train.Trainer[Backend]{Backend: backend, Criterion: loss.NewCrossEntropy(backend)}
	m0 := newDense(t, backend, 1, false)

	models, h, err := tr.TrainAdapt(m0, newLoader(t, backend, 100, 10), 1, 2, 1e-2)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Same(t, m0, models[0].(*model.ODEModel[Backend]))
	assert.Len(t, h.Losses, 20)
	assert.Equal(t, []int{10, 20}, h.RefineSteps)
	assert.Len(t, h.Stage(1), 10)

	m1 := models[1].(*model.ODEModel[Backend])
	proj := m0.ProjectionParameterCount()
	assert.Equal(t, 2*(model.ParameterCount[Backend](m0)-proj), model.ParameterCount[Backend](m1)-proj)
	assert.Equal(t, 2, m1.Block().TimeD())
	assert.Equal(t, 2, m1.Block().NTimeSteps())
}

func TestTrainAdapt_RefineStepsAreCumulative(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tr := &train.Trainer[Backend]{Backend: backend, Criterion: loss.NewCrossEntropy(backend), PrintEvery: 3}
	models, h, err := tr.TrainAdapt(newDense(t, backend, 2, true), newLoader(t, backend, 12, 4), 2, 3, 1e-3)
	require.NoError(t, err)
	assert.Len(t, models, 3)
	assert.Equal(t, []int{6, 12, 18}, h.RefineSteps)
}

func TestTrainForEpochs_Deterministic(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tr := &train.Trainer[Backend]{Backend: backend, Criterion: loss.NewCrossEntropy(backend)}
	a := newDense(t, backend, 3, false)
	b := newDense(t, backend, 3, false)

	ha := tr.TrainForEpochs(a, newLoader(t, backend, 8, 8), 2, 1e-2, train.History{})
	hb := tr.TrainForEpochs(b, newLoader(t, backend, 8, 8), 2, 1e-2, train.History{})
	require.Len(t, ha.Losses, 2)
	assert.Equal(t, ha.Losses, hb.Losses)
	for i, p := range a.Parameters() {
		assert.Equal(t, p.Tensor().Data(), b.Parameters()[i].Tensor().Data())
	}
}

func TestEvaluate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tr := &train.Trainer[Backend]{Backend: backend, Criterion: loss.NewCrossEntropy(backend)}
	tape := backend.Tape()
	tape.StartRecording()
	defer tape.StopRecording()

	m := tr.Evaluate(newDense(t, backend, 5, false), newLoader(t, backend, 30, 7))
	assert.GreaterOrEqual(t, m.Accuracy, float32(0))
	assert.LessOrEqual(t, m.Accuracy, float32(1))
	assert.Greater(t, m.Loss, float32(0))
	assert.Equal(t, 0, tape.NumOps())
	assert.True(t, tape.IsRecording())
}

func TestCheckpointer(t *testing.T) {
	backend := autodiff.New(cpu.New())
	dir := t.TempDir()
	ckpt, err := train.NewCheckpointer(dir)
	require.NoError(t, err)
	tr := &train.Trainer[Backend]{
		Backend:      backend,
		Criterion:    loss.NewCrossEntropy(backend),
		Eval:         newLoader(t, backend, 10, 5),
		Checkpointer: ckpt,
	}
	models, _, err := tr.TrainAdapt(newDense(t, backend, 6, false), newLoader(t, backend, 10, 5), 1, 2, 1e-3)
	require.NoError(t, err)

	for stage, m := range models {
		_, err := os.Stat(ckpt.Path(stage))
		require.NoError(t, err)

		// Load into a fresh network of the same resolution.
		fresh := newDense(t, backend, 99, false)
		for i := 0; i < stage; i++ {
			refined, err := fresh.Refine()
			require.NoError(t, err)
			fresh = refined.(*model.ODEModel[Backend])
		}
		meta, err := train.Load[Backend](ckpt.Path(stage), backend, fresh)
		require.NoError(t, err)
		assert.Equal(t, ckpt.RunID().String(), meta["run_id"])
		assert.Equal(t, m.Metadata()["time_d"], meta["time_d"])
		assert.Equal(t, "refinenet.dense", meta["model_type"])
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("stage-%d.safetensors", stage)), ckpt.Path(stage))
		for i, p := range m.Parameters() {
			assert.Equal(t, p.Tensor().Data(), fresh.Parameters()[i].Tensor().Data())
		}
	}
}
