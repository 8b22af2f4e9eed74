// Package data provides seeded synthetic datasets and mini-batch loading for
// refinenet experiments.
package data

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/born/tensor"
)

// Dataset holds samples in host memory.
//
// Classification datasets set Labels and Classes; regression datasets set
// Targets. Every input has SampleShape; every regression target has
// TargetShape.
type Dataset struct {
	Inputs      [][]float32
	Labels      []int32
	Targets     [][]float32
	SampleShape tensor.Shape
	TargetShape tensor.Shape
	Classes     int
}

// NumSamples returns the number of samples.
func (d *Dataset) NumSamples() int {
	return len(d.Inputs)
}

// Classification reports whether samples carry class labels.
func (d *Dataset) Classification() bool {
	return d.Labels != nil
}

// Split splits the dataset into a training part and a validation part
// holding the trailing validationRatio of the samples.
func (d *Dataset) Split(validationRatio float32) (*Dataset, *Dataset) {
	splitIdx := int(float32(d.NumSamples()) * (1.0 - validationRatio))
	train, val := *d, *d
	train.Inputs, val.Inputs = d.Inputs[:splitIdx], d.Inputs[splitIdx:]
	if d.Labels != nil {
		train.Labels, val.Labels = d.Labels[:splitIdx], d.Labels[splitIdx:]
	}
	if d.Targets != nil {
		train.Targets, val.Targets = d.Targets[:splitIdx], d.Targets[splitIdx:]
	}
	return &train, &val
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))
}

// Blobs returns n points in dim dimensions drawn from classes isotropic
// Gaussian clusters with unit variance. Cluster centers are drawn from
// N(0, 3^2). Labels cycle through the classes.
func Blobs(seed uint64, n, dim, classes int) *Dataset {
	rng := newRand(seed)
	centers := make([][]float32, classes)
	for c := range centers {
		centers[c] = make([]float32, dim)
		for j := range centers[c] {
			centers[c][j] = float32(3 * rng.NormFloat64())
		}
	}
	ds := &Dataset{
		Inputs:      make([][]float32, n),
		Labels:      make([]int32, n),
		SampleShape: tensor.Shape{dim},
		Classes:     classes,
	}
	for i := 0; i < n; i++ {
		label := i % classes
		x := make([]float32, dim)
		for j := range x {
			x[j] = centers[label][j] + float32(rng.NormFloat64())
		}
		ds.Inputs[i] = x
		ds.Labels[i] = int32(label)
	}
	return ds
}

// Sine returns n samples of y = sin(2*pi*x) with x drawn from U(0, 1).
func Sine(seed uint64, n int) *Dataset {
	rng := newRand(seed)
	ds := &Dataset{
		Inputs:      make([][]float32, n),
		Targets:     make([][]float32, n),
		SampleShape: tensor.Shape{1},
		TargetShape: tensor.Shape{1},
	}
	for i := 0; i < n; i++ {
		x := rng.Float64()
		ds.Inputs[i] = []float32{float32(x)}
		ds.Targets[i] = []float32{float32(math.Sin(2 * math.Pi * x))}
	}
	return ds
}

// Images returns n images of shape [c, h, w]. Each class has a random
// template with values in [0, 1]; a sample is its class template plus
// N(0, 0.1^2) pixel noise.
func Images(seed uint64, n, c, h, w, classes int) *Dataset {
	rng := newRand(seed)
	size := c * h * w
	templates := make([][]float32, classes)
	for k := range templates {
		templates[k] = make([]float32, size)
		for j := range templates[k] {
			templates[k][j] = float32(rng.Float64())
		}
	}
	ds := &Dataset{
		Inputs:      make([][]float32, n),
		Labels:      make([]int32, n),
		SampleShape: tensor.Shape{c, h, w},
		Classes:     classes,
	}
	for i := 0; i < n; i++ {
		label := i % classes
		img := make([]float32, size)
		for j := range img {
			img[j] = templates[label][j] + float32(0.1*rng.NormFloat64())
		}
		ds.Inputs[i] = img
		ds.Labels[i] = int32(label)
	}
	return ds
}
