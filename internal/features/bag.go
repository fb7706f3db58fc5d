package features

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrWidthMismatch indicates two archives of one patient disagree on feature width.
var ErrWidthMismatch = errors.New("feature width mismatch")

// Path identifies one slide's feature archive on disk.
type Path string

// Bag is an unordered multiset of instance feature vectors stored row-major.
type Bag struct {
	Rows int
	Dim  int
	Data []float32
}

// Row returns the feature vector of instance i. The slice aliases the bag data.
func (b Bag) Row(i int) []float32 {
	return b.Data[i*b.Dim : (i+1)*b.Dim]
}

// Append concatenates other onto b. An empty b adopts the width of other.
func (b Bag) Append(other Bag) (Bag, error) {
	if b.Rows == 0 && b.Dim == 0 {
		return Bag{Rows: other.Rows, Dim: other.Dim, Data: append([]float32(nil), other.Data...)}, nil
	}
	if other.Dim != b.Dim {
		return Bag{}, fmt.Errorf("%w: %d vs %d", ErrWidthMismatch, b.Dim, other.Dim)
	}
	data := make([]float32, 0, len(b.Data)+len(other.Data))
	data = append(data, b.Data...)
	data = append(data, other.Data...)
	return Bag{Rows: b.Rows + other.Rows, Dim: b.Dim, Data: data}, nil
}

// ToFixedSize draws a uniform random subset of at most size instances without
// replacement and zero-pads the result to exactly size rows. The returned
// count is the number of real instances, min(size, bag.Rows); real rows
// always precede padding.
func ToFixedSize(bag Bag, size int, rng *rand.Rand) (Bag, int) {
	out := Bag{Rows: size, Dim: bag.Dim, Data: make([]float32, size*bag.Dim)}
	count := min(size, bag.Rows)
	if count == 0 {
		return out, 0
	}
	perm := rng.Perm(bag.Rows)
	for i := 0; i < count; i++ {
		copy(out.Data[i*bag.Dim:(i+1)*bag.Dim], bag.Row(perm[i]))
	}
	return out, count
}
