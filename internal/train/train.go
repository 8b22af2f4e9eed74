// Package train implements the refinement curriculum: train a network,
// refine it, and keep training the refined network at a decayed learning
// rate.
package train

import (
	"math"

	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/refinenet/internal/data"
	"github.com/born-ml/refinenet/internal/loss"
	"github.com/born-ml/refinenet/internal/model"
)

// History records every step loss of a run.
//
// RefineSteps[i] is len(Losses) at the end of stage i, so stage i covers
// Losses[RefineSteps[i-1]:RefineSteps[i]].
type History struct {
	Losses      []float32
	RefineSteps []int
}

// Stage returns the losses of stage i.
func (h History) Stage(i int) []float32 {
	start := 0
	if i > 0 {
		start = h.RefineSteps[i-1]
	}
	return h.Losses[start:h.RefineSteps[i]]
}

// StageLR returns the learning rate of stage i: base * 10^floor(-i/2), which
// gives the multipliers 1, 0.1, 0.1, 0.01, 0.01, ...
func StageLR(base float64, stage int) float64 {
	return base * math.Pow(10, math.Floor(-float64(stage)/2))
}

// Trainer runs training loops on one backend.
type Trainer[B tensor.Backend] struct {
	Backend   B
	Criterion loss.Criterion[B]

	// PrintEvery logs the loss of every PrintEvery-th step. Zero disables
	// progress logging.
	PrintEvery int

	// Eval, if set, is evaluated at the end of every stage.
	Eval data.Loader[B]

	// Checkpointer, if set, saves the network at the end of every stage.
	Checkpointer *Checkpointer
}

// TrainForEpochs trains net for the given number of epochs with a fresh Adam
// optimizer and appends every step loss to h.
func (tr *Trainer[B]) TrainForEpochs(net model.Network[B], loader data.Loader[B], epochs int, lr float64, h History) History {
	optimizer := optim.NewAdam(net.Parameters(), optim.AdamConfig{
		LR:    float32(lr),
		Betas: [2]float32{0.9, 0.999},
		Eps:   1e-8,
	}, tr.Backend)

	net.SetTraining(true)
	step := 0
	for e := 0; e < epochs; e++ {
		for _, batch := range loader.Batches() {
			optimizer.ZeroGrad()
			value, grads := net.Gradients(batch.Inputs, batch.Targets, tr.Criterion)
			optimizer.Step(grads)
			h.Losses = append(h.Losses, value)

			if tr.PrintEvery > 0 && step%tr.PrintEvery == tr.PrintEvery-1 {
				klog.Infof("epoch %d step %d: loss %.6f", e, step+1, value)
			} else if klog.V(2).Enabled() {
				klog.Infof("epoch %d step %d: loss %.6f", e, step+1, value)
			}
			step++
		}
	}
	return h
}

// TrainAdapt runs refines stages. Stage 0 trains net; every later stage
// refines the newest network first. Stage i uses StageLR(lr, i). It returns
// every network in stage order along with the loss history.
func (tr *Trainer[B]) TrainAdapt(net model.Network[B], loader data.Loader[B], epochs, refines int, lr float64) ([]model.Network[B], History, error) {
	var h History
	models := []model.Network[B]{net}
	for i := 0; i < refines; i++ {
		stageLR := StageLR(lr, i)
		if i > 0 {
			refined, err := models[len(models)-1].Refine()
			if err != nil {
				return models, h, errors.Wrapf(err, "refine before stage %d", i)
			}
			models = append(models, refined)
			klog.Infof("Adapting to %d parameters with lr = %g", model.ParameterCount(refined), stageLR)
		} else {
			klog.Infof("Starting with %d parameters with lr = %g", model.ParameterCount(net), stageLR)
		}

		current := models[len(models)-1]
		h = tr.TrainForEpochs(current, loader, epochs, stageLR, h)
		h.RefineSteps = append(h.RefineSteps, len(h.Losses))

		if tr.Eval != nil {
			m := tr.Evaluate(current, tr.Eval)
			klog.Infof("stage %d: eval loss %.6f accuracy %.4f", i, m.Loss, m.Accuracy)
		}
		if tr.Checkpointer != nil {
			path, err := Save(tr.Checkpointer, current, i, stageLR)
			if err != nil {
				return models, h, errors.Wrapf(err, "checkpoint stage %d", i)
			}
			klog.V(1).Infof("stage %d saved to %s", i, path)
		}
	}
	return models, h, nil
}
