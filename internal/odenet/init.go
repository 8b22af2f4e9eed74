package odenet

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Init draws initial parameter values from a seeded source.
//
// Two Inits created with the same seed produce identical sequences, which
// makes model construction reproducible. Born's own initializers draw from
// the global math/rand source and cannot be seeded per model.
type Init struct {
	rng *rand.Rand
}

// NewInit creates an initializer seeded with seed.
func NewInit(seed uint64) *Init {
	return &Init{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Normal creates a tensor with values drawn from N(0, std^2).
func Normal[B tensor.Backend](in *Init, shape tensor.Shape, std float64, backend B) *tensor.Tensor[float32, B] {
	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32(in.rng.NormFloat64() * std)
	}
	return t
}

// Uniform creates a tensor with values drawn from U(-bound, bound).
func Uniform[B tensor.Backend](in *Init, shape tensor.Shape, bound float64, backend B) *tensor.Tensor[float32, B] {
	t := tensor.Zeros[float32](shape, backend)
	in.fillUniform(t.Data(), bound)
	return t
}

// Reset overwrites the values of existing parameters with a Kaiming-uniform
// draw, U(-1/sqrt(fanIn), 1/sqrt(fanIn)), for every tensor of rank >= 2 and
// for the biases that follow them.
//
// It is used to make Born layers (nn.Linear, nn.Conv2D) reproducible.
func Reset[B tensor.Backend](in *Init, params []*nn.Parameter[B]) {
	bound := 1.0
	for _, p := range params {
		shape := p.Tensor().Shape()
		if len(shape) >= 2 {
			fanIn := shape.NumElements() / shape[0]
			bound = 1.0 / math.Sqrt(float64(fanIn))
		}
		in.fillUniform(p.Tensor().Data(), bound)
	}
}

func (in *Init) fillUniform(data []float32, bound float64) {
	for i := range data {
		data[i] = float32((in.rng.Float64()*2.0 - 1.0) * bound)
	}
}
