package odenet

import (
	"fmt"
	"math"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// BatchNorm normalizes each channel with batch statistics during training
// and with running statistics during evaluation.
//
// Input shape: [batch, channels] or [batch, channels, height, width]
//
// Algorithm (training):
//  1. mean, var = batch mean and biased variance per channel
//  2. x_hat = (x - mean) / sqrt(var + eps)
//  3. output = gamma * x_hat + beta
//  4. if tracking: running = (1-momentum)*running + momentum*batch_stat,
//     with the unbiased variance for running_var
//
// Running statistics are buffers, not parameters. Tracking can be switched
// off so that extra forward passes (trajectory tracing, adjoint
// recomputation, refinement) leave them unchanged.
type BatchNorm[B tensor.Backend] struct {
	numFeatures int
	eps         float32
	momentum    float32
	gamma       *nn.Parameter[B]
	beta        *nn.Parameter[B]
	runningMean []float32
	runningVar  []float32
	track       bool
	training    bool
	backend     B
}

// NewBatchNorm creates a BatchNorm over numFeatures channels with
// eps = 1e-5 and momentum = 0.1, in training mode, tracking statistics.
func NewBatchNorm[B tensor.Backend](name string, numFeatures int, backend B) *BatchNorm[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("BatchNorm: invalid number of features %d", numFeatures))
	}
	runningVar := make([]float32, numFeatures)
	for i := range runningVar {
		runningVar[i] = 1
	}
	return &BatchNorm[B]{
		numFeatures: numFeatures,
		eps:         1e-5,
		momentum:    0.1,
		gamma:       nn.NewParameter(name+".weight", tensor.Ones[float32](tensor.Shape{numFeatures}, backend)),
		beta:        nn.NewParameter(name+".bias", tensor.Zeros[float32](tensor.Shape{numFeatures}, backend)),
		runningMean: make([]float32, numFeatures),
		runningVar:  runningVar,
		track:       true,
		training:    true,
		backend:     backend,
	}
}

// Forward normalizes x.
func (bn *BatchNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if (len(shape) != 2 && len(shape) != 4) || shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("BatchNorm.Forward: expected [N, %d] or [N, %d, H, W], got %v",
			bn.numFeatures, bn.numFeatures, shape))
	}
	statShape := tensor.Shape{1, bn.numFeatures}
	reduceDims := []int{0}
	if len(shape) == 4 {
		statShape = tensor.Shape{1, bn.numFeatures, 1, 1}
		reduceDims = []int{0, 2, 3}
	}

	var xHat *tensor.Tensor[float32, B]
	if bn.training {
		mean := reduceMean(x, reduceDims)
		xCentered := x.Sub(mean)
		variance := reduceMean(xCentered.Mul(xCentered), reduceDims)
		if bn.track {
			bn.updateRunningStats(mean.Data(), variance.Data(), shape.NumElements()/bn.numFeatures)
		}
		xHat = xCentered.Mul(bn.rsqrt(variance.Add(tensor.Full[float32](variance.Shape(), bn.eps, bn.backend))))
	} else {
		invStd := make([]float32, bn.numFeatures)
		for i, v := range bn.runningVar {
			invStd[i] = float32(1.0 / math.Sqrt(float64(v+bn.eps)))
		}
		mean := fromSlice(bn.runningMean, statShape, bn.backend)
		xHat = x.Sub(mean).Mul(fromSlice(invStd, statShape, bn.backend))
	}

	gamma := bn.gamma.Tensor().Reshape(statShape...)
	beta := bn.beta.Tensor().Reshape(statShape...)
	return xHat.Mul(gamma).Add(beta)
}

func (bn *BatchNorm[B]) updateRunningStats(mean, variance []float32, n int) {
	unbias := float32(1)
	if n > 1 {
		unbias = float32(n) / float32(n-1)
	}
	for i := range bn.runningMean {
		bn.runningMean[i] = (1-bn.momentum)*bn.runningMean[i] + bn.momentum*mean[i]
		bn.runningVar[i] = (1-bn.momentum)*bn.runningVar[i] + bn.momentum*variance[i]*unbias
	}
}

func (bn *BatchNorm[B]) rsqrt(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	rsqrtBackend, ok := any(bn.backend).(interface {
		Rsqrt(*tensor.RawTensor) *tensor.RawTensor
	})
	if !ok {
		panic("BatchNorm: backend must implement Rsqrt operation")
	}
	return tensor.New[float32, B](rsqrtBackend.Rsqrt(x.Raw()), bn.backend)
}

// Parameters returns gamma and beta.
func (bn *BatchNorm[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{bn.gamma, bn.beta}
}

// SetTrackRunningStats enables or disables running-stat updates and returns
// the previous setting.
func (bn *BatchNorm[B]) SetTrackRunningStats(track bool) bool {
	prev := bn.track
	bn.track = track
	return prev
}

// SetTraining switches between batch statistics (true) and running
// statistics (false).
func (bn *BatchNorm[B]) SetTraining(training bool) {
	bn.training = training
}

// RunningMean returns a copy of the running mean.
func (bn *BatchNorm[B]) RunningMean() []float32 {
	return append([]float32(nil), bn.runningMean...)
}

// RunningVar returns a copy of the running variance.
func (bn *BatchNorm[B]) RunningVar() []float32 {
	return append([]float32(nil), bn.runningVar...)
}

// Clone returns a deep copy, including buffers and mode flags.
func (bn *BatchNorm[B]) Clone() *BatchNorm[B] {
	c := *bn
	c.gamma = nn.NewParameter(bn.gamma.Name(), Clone(bn.gamma.Tensor()))
	c.beta = nn.NewParameter(bn.beta.Name(), Clone(bn.beta.Tensor()))
	c.runningMean = bn.RunningMean()
	c.runningVar = bn.RunningVar()
	return &c
}

// StateDict returns gamma, beta and the running statistics.
func (bn *BatchNorm[B]) StateDict() map[string]*tensor.RawTensor {
	shape := tensor.Shape{bn.numFeatures}
	return map[string]*tensor.RawTensor{
		"weight":       bn.gamma.Tensor().Raw(),
		"bias":         bn.beta.Tensor().Raw(),
		"running_mean": fromSlice(bn.runningMean, shape, bn.backend).Raw(),
		"running_var":  fromSlice(bn.runningVar, shape, bn.backend).Raw(),
	}
}

// LoadStateDict loads gamma, beta and the running statistics.
func (bn *BatchNorm[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := loadInto(state, "weight", bn.gamma.Tensor()); err != nil {
		return err
	}
	if err := loadInto(state, "bias", bn.beta.Tensor()); err != nil {
		return err
	}
	shape := tensor.Shape{bn.numFeatures}
	mean := tensor.Zeros[float32](shape, bn.backend)
	if err := loadInto(state, "running_mean", mean); err != nil {
		return err
	}
	variance := tensor.Zeros[float32](shape, bn.backend)
	if err := loadInto(state, "running_var", variance); err != nil {
		return err
	}
	copy(bn.runningMean, mean.Data())
	copy(bn.runningVar, variance.Data())
	return nil
}

func reduceMean[B tensor.Backend](x *tensor.Tensor[float32, B], dims []int) *tensor.Tensor[float32, B] {
	for _, d := range dims {
		x = x.MeanDim(d, true)
	}
	return x
}

func fromSlice[B tensor.Backend](data []float32, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	t, err := tensor.FromSlice(data, shape, backend)
	if err != nil {
		panic(err)
	}
	return t
}
