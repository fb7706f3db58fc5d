package weights

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultFloor is the minimum number of training examples per category.
const DefaultFloor = 16

// MinCategories is the smallest category count a classifier can train on.
const MinCategories = 2

// InsufficientCategoryError lists every category whose population is below Floor.
type InsufficientCategoryError struct {
	Floor  int
	Counts map[string]int
}

func (e *InsufficientCategoryError) Error() string {
	names := make([]string, 0, len(e.Counts))
	for name := range e.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, e.Counts[name])
	}
	return fmt.Sprintf("categories with fewer than %d examples: %s", e.Floor, strings.Join(parts, ", "))
}

// InsufficientCategoryCountError reports fewer than MinCategories categories.
type InsufficientCategoryCountError struct {
	Categories []string
}

func (e *InsufficientCategoryCountError) Error() string {
	return fmt.Sprintf("at least %d categories required for training, found %d: [%s]", MinCategories, len(e.Categories), strings.Join(e.Categories, ", "))
}

// Compute returns inverse-frequency weights normalized to sum to one:
// w[c] = (Σ counts / counts[c]) / Σ_c' (Σ counts / counts[c']).
// It fails when fewer than two categories exist or any count is below floor.
func Compute(categories []string, counts []int, floor int) ([]float64, error) {
	if len(categories) != len(counts) {
		return nil, fmt.Errorf("%d categories but %d counts", len(categories), len(counts))
	}
	if len(categories) < MinCategories {
		return nil, &InsufficientCategoryCountError{Categories: append([]string(nil), categories...)}
	}

	low := map[string]int{}
	total := 0
	for i, n := range counts {
		if n < floor {
			low[categories[i]] = n
		}
		total += n
	}
	if len(low) > 0 {
		return nil, &InsufficientCategoryError{Floor: floor, Counts: low}
	}

	raw := make([]float64, len(counts))
	sum := 0.0
	for i, n := range counts {
		if n == 0 {
			return nil, &InsufficientCategoryError{Floor: max(floor, 1), Counts: map[string]int{categories[i]: 0}}
		}
		raw[i] = float64(total) / float64(n)
		sum += raw[i]
	}
	for i := range raw {
		raw[i] /= sum
	}
	return raw, nil
}

// Count sums a one-hot target matrix per category. Rows of all zeros
// contribute nothing.
func Count(targets [][]float32, numCategories int) []int {
	counts := make([]int, numCategories)
	for _, row := range targets {
		for c := 0; c < numCategories && c < len(row); c++ {
			if row[c] != 0 {
				counts[c]++
			}
		}
	}
	return counts
}
