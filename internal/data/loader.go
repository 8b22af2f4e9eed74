package data

import (
	"math/rand/v2"

	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"

	"github.com/born-ml/refinenet/internal/parallel"
)

// Batch is a mini-batch ready for a forward pass.
//
// Inputs has shape [Size, sample...]. Targets holds int32 labels of shape
// [Size] for classification or float32 targets of shape [Size, target...]
// for regression.
type Batch[B tensor.Backend] struct {
	Inputs  *tensor.Tensor[float32, B]
	Targets *tensor.RawTensor
	Size    int
}

// Labels returns the targets as an int32 tensor, for classification
// metrics.
func (b *Batch[B]) Labels() *tensor.Tensor[int32, B] {
	return tensor.New[int32, B](b.Targets, b.Inputs.Backend())
}

// Loader yields the batches of one epoch per call to Batches.
type Loader[B tensor.Backend] interface {
	Batches() []*Batch[B]
	Len() int
}

// DataLoader batches a Dataset. With shuffling enabled, each call to Batches
// draws a new permutation from a seeded source, so a run is reproducible.
type DataLoader[B tensor.Backend] struct {
	ds        *Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	backend   B
	cached    []*Batch[B]
}

// NewLoader creates a DataLoader over ds.
func NewLoader[B tensor.Backend](ds *Dataset, batchSize int, shuffle bool, seed uint64, backend B) (*DataLoader[B], error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if ds.NumSamples() == 0 {
		return nil, errors.New("dataset is empty")
	}
	if ds.Labels != nil && len(ds.Labels) != ds.NumSamples() {
		return nil, errors.Errorf("inputs and labels length mismatch: %d != %d", ds.NumSamples(), len(ds.Labels))
	}
	if ds.Labels == nil && len(ds.Targets) != ds.NumSamples() {
		return nil, errors.Errorf("inputs and targets length mismatch: %d != %d", ds.NumSamples(), len(ds.Targets))
	}
	return &DataLoader[B]{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       newRand(seed),
		backend:   backend,
	}, nil
}

// Len returns the number of batches per epoch.
func (l *DataLoader[B]) Len() int {
	return (l.ds.NumSamples() + l.batchSize - 1) / l.batchSize
}

// Batches returns the batches of the next epoch. Without shuffling the same
// batches are returned every epoch.
func (l *DataLoader[B]) Batches() []*Batch[B] {
	if !l.shuffle && l.cached != nil {
		return l.cached
	}
	indices := make([]int, l.ds.NumSamples())
	for i := range indices {
		indices[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}
	batches, err := CreateBatches(l.ds, indices, l.batchSize, l.backend)
	if err != nil {
		// Shapes were validated by NewLoader.
		panic(err)
	}
	if !l.shuffle {
		l.cached = batches
	}
	return batches
}

// copyOptions bounds the goroutines used to fill one batch.
var copyOptions = parallel.DefaultOptions()

// CreateBatches copies the samples of ds, in the order given by indices,
// into mini-batches of batchSize. The last batch may be smaller.
func CreateBatches[B tensor.Backend](ds *Dataset, indices []int, batchSize int, backend B) ([]*Batch[B], error) {
	sampleSize := ds.SampleShape.NumElements()
	targetSize := ds.TargetShape.NumElements()
	numSamples := len(indices)
	batches := make([]*Batch[B], 0, (numSamples+batchSize-1)/batchSize)

	for i := 0; i < numSamples; i += batchSize {
		end := min(i+batchSize, numSamples)
		size := end - i

		inputsRaw, err := tensor.NewRaw(append(tensor.Shape{size}, ds.SampleShape...), tensor.Float32, backend.Device())
		if err != nil {
			return nil, errors.Wrap(err, "failed to create inputs tensor")
		}
		inputs := inputsRaw.AsFloat32()

		var targetsRaw *tensor.RawTensor
		if ds.Classification() {
			targetsRaw, err = tensor.NewRaw(tensor.Shape{size}, tensor.Int32, backend.Device())
		} else {
			targetsRaw, err = tensor.NewRaw(append(tensor.Shape{size}, ds.TargetShape...), tensor.Float32, backend.Device())
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to create targets tensor")
		}

		for j := i; j < end; j++ {
			idx := indices[j]
			if len(ds.Inputs[idx]) != sampleSize {
				return nil, errors.Errorf("sample %d has %d values, want %d", idx, len(ds.Inputs[idx]), sampleSize)
			}
			if !ds.Classification() && len(ds.Targets[idx]) != targetSize {
				return nil, errors.Errorf("target %d has %d values, want %d", idx, len(ds.Targets[idx]), targetSize)
			}
		}

		parallel.Range(size, copyOptions, func(k int) {
			idx := indices[i+k]
			copy(inputs[k*sampleSize:(k+1)*sampleSize], ds.Inputs[idx])
			if ds.Classification() {
				targetsRaw.AsInt32()[k] = ds.Labels[idx]
				return
			}
			copy(targetsRaw.AsFloat32()[k*targetSize:(k+1)*targetSize], ds.Targets[idx])
		})

		batches = append(batches, &Batch[B]{
			Inputs:  tensor.New[float32, B](inputsRaw, backend),
			Targets: targetsRaw,
			Size:    size,
		})
	}
	return batches, nil
}
