package train

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/refinenet/internal/data"
	"github.com/born-ml/refinenet/internal/model"
	"github.com/born-ml/refinenet/internal/odenet"
)

// Metrics summarizes an evaluation pass.
type Metrics struct {
	Loss     float32 // mean batch loss
	Accuracy float32 // fraction of correct labels; zero for regression
}

// Evaluate runs net over every batch of loader in evaluation mode without
// recording on the tape. The network is left in training mode.
func (tr *Trainer[B]) Evaluate(net model.Network[B], loader data.Loader[B]) Metrics {
	defer odenet.PauseTape(tr.Backend)()
	net.SetTraining(false)
	defer net.SetTraining(true)

	var totalLoss float32
	correct, samples, batches := float32(0), 0, 0
	for _, batch := range loader.Batches() {
		out := net.Forward(batch.Inputs)
		totalLoss += tr.Criterion.Forward(out, batch.Targets).Data()[0]
		if batch.Targets.DType() == tensor.Int32 {
			correct += nn.Accuracy(out, batch.Labels()) * float32(batch.Size)
		}
		samples += batch.Size
		batches++
	}
	if batches == 0 {
		return Metrics{}
	}
	return Metrics{
		Loss:     totalLoss / float32(batches),
		Accuracy: correct / float32(samples),
	}
}
