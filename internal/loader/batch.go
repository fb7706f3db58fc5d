package loader

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"milprep/internal/cohort"
	"milprep/internal/features"
)

// Batch is one step of training input. Slices are parallel.
type Batch struct {
	Bags     []features.Bag
	Counts   []int
	Targets  [][]float32
	Patients []cohort.PatientID
}

// Len returns the number of bags in the batch.
func (b *Batch) Len() int { return len(b.Bags) }

// Tensors converts the batch to GoMLX tensors shaped [B, N, F], [B] and [B, C].
// All bags must share one shape, which fixed-size bags and single-bag batches
// always do.
func (b *Batch) Tensors() (bags, counts, targets *tensors.Tensor, err error) {
	if len(b.Bags) == 0 {
		return nil, nil, nil, fmt.Errorf("empty batch")
	}
	rows, dim := b.Bags[0].Rows, b.Bags[0].Dim
	flat := make([]float32, 0, len(b.Bags)*rows*dim)
	for i, bag := range b.Bags {
		if bag.Rows != rows || bag.Dim != dim {
			return nil, nil, nil, fmt.Errorf("bag %d has shape %dx%d, want %dx%d", i, bag.Rows, bag.Dim, rows, dim)
		}
		flat = append(flat, bag.Data...)
	}

	sizes := make([]int32, len(b.Counts))
	for i, c := range b.Counts {
		sizes[i] = int32(c)
	}

	width := 0
	if len(b.Targets) > 0 {
		width = len(b.Targets[0])
	}
	encoded := make([]float32, 0, len(b.Targets)*width)
	for _, row := range b.Targets {
		encoded = append(encoded, row...)
	}

	bags = tensors.FromFlatDataAndDimensions(flat, len(b.Bags), rows, dim)
	counts = tensors.FromAnyValue(sizes)
	targets = tensors.FromFlatDataAndDimensions(encoded, len(b.Targets), width)
	return bags, counts, targets, nil
}
