package split

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"

	"milprep/internal/cohort"
)

var (
	// ErrLengthMismatch indicates patients and labels of different length.
	ErrLengthMismatch = errors.New("patients and labels differ in length")
	// ErrTooFewPatients indicates a population too small to split.
	ErrTooFewPatients = errors.New("too few patients to split")
	// ErrFraction indicates a validation fraction outside (0, 1).
	ErrFraction = errors.New("validation fraction must be between 0 and 1")
)

// InvariantViolation reports patients assigned to both partitions. It can
// only be caused by a defect in the planner or its input contract.
type InvariantViolation struct {
	Overlap []cohort.PatientID
}

func (e *InvariantViolation) Error() string {
	ids := make([]string, len(e.Overlap))
	for i, id := range e.Overlap {
		ids[i] = string(id)
	}
	return "unreachable: unexpected overlap between training and validation set: " + strings.Join(ids, ", ")
}

// Fold is one train/validation partition.
type Fold struct {
	Train []cohort.PatientID
	Valid []cohort.PatientID
}

type stratum struct {
	key     string
	members []cohort.PatientID
}

// Stratified partitions patients so each label keeps its share in both
// halves. The validation set holds ceil(fraction*n) patients, distributed
// over labels by largest remainder. Unknown ground truth forms its own
// stratum. The result is a pure function of the inputs and seed; both
// partitions are sorted.
func Stratified(patients []cohort.PatientID, labels []cohort.GroundTruth, fraction float64, seed uint64) (train, valid []cohort.PatientID, err error) {
	if len(patients) != len(labels) {
		return nil, nil, fmt.Errorf("%w: %d patients, %d labels", ErrLengthMismatch, len(patients), len(labels))
	}
	if !(fraction > 0 && fraction < 1) {
		return nil, nil, fmt.Errorf("%w: got %v", ErrFraction, fraction)
	}
	n := len(patients)
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: %d", ErrTooFewPatients, n)
	}

	nValid := int(math.Ceil(fraction * float64(n)))
	nValid = min(max(nValid, 1), n-1)

	strata := groupStrata(patients, labels)
	alloc := allocate(strata, nValid, n)

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i, s := range strata {
		shuffle(rng, s.members)
		valid = append(valid, s.members[:alloc[i]]...)
		train = append(train, s.members[alloc[i]:]...)
	}
	slices.Sort(train)
	slices.Sort(valid)
	return train, valid, nil
}

// KFold deals patients into k stratified folds. Each patient is validated in
// exactly one fold and fold sizes differ by at most one.
func KFold(patients []cohort.PatientID, labels []cohort.GroundTruth, k int, seed uint64) ([]Fold, error) {
	if len(patients) != len(labels) {
		return nil, fmt.Errorf("%w: %d patients, %d labels", ErrLengthMismatch, len(patients), len(labels))
	}
	if k < 2 {
		return nil, fmt.Errorf("k-fold needs at least 2 folds, got %d", k)
	}
	if len(patients) < k {
		return nil, fmt.Errorf("%w: %d patients for %d folds", ErrTooFewPatients, len(patients), k)
	}

	strata := groupStrata(patients, labels)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buckets := make([][]cohort.PatientID, k)
	offset := 0
	for _, s := range strata {
		shuffle(rng, s.members)
		for i, id := range s.members {
			f := (offset + i) % k
			buckets[f] = append(buckets[f], id)
		}
		offset += len(s.members)
	}

	folds := make([]Fold, k)
	for f := range folds {
		valid := slices.Clone(buckets[f])
		var train []cohort.PatientID
		for g, bucket := range buckets {
			if g != f {
				train = append(train, bucket...)
			}
		}
		slices.Sort(valid)
		slices.Sort(train)
		folds[f] = Fold{Train: train, Valid: valid}
	}
	return folds, nil
}

// CheckDisjoint returns an InvariantViolation when a patient is in both sets.
func CheckDisjoint(train, valid []cohort.PatientID) error {
	inTrain := make(map[cohort.PatientID]struct{}, len(train))
	for _, id := range train {
		inTrain[id] = struct{}{}
	}
	var overlap []cohort.PatientID
	for _, id := range valid {
		if _, ok := inTrain[id]; ok {
			overlap = append(overlap, id)
		}
	}
	if len(overlap) == 0 {
		return nil
	}
	slices.Sort(overlap)
	return &InvariantViolation{Overlap: slices.Compact(overlap)}
}

func stratumKey(label cohort.GroundTruth) string {
	if value, ok := label.Label(); ok {
		return "known:" + value
	}
	return "unknown"
}

// groupStrata buckets patients by label, each bucket sorted by id, buckets
// sorted by key.
func groupStrata(patients []cohort.PatientID, labels []cohort.GroundTruth) []stratum {
	index := make(map[string]int)
	var strata []stratum
	for i, id := range patients {
		key := stratumKey(labels[i])
		pos, ok := index[key]
		if !ok {
			pos = len(strata)
			index[key] = pos
			strata = append(strata, stratum{key: key})
		}
		strata[pos].members = append(strata[pos].members, id)
	}
	sort.Slice(strata, func(i, j int) bool { return strata[i].key < strata[j].key })
	for i := range strata {
		slices.Sort(strata[i].members)
	}
	return strata
}

// allocate splits total validation slots across strata proportionally,
// handing leftover slots to the largest fractional remainders.
func allocate(strata []stratum, total, n int) []int {
	alloc := make([]int, len(strata))
	type remainder struct {
		idx  int
		frac float64
	}
	rems := make([]remainder, 0, len(strata))
	assigned := 0
	for i, s := range strata {
		exact := float64(total) * float64(len(s.members)) / float64(n)
		alloc[i] = int(math.Floor(exact))
		assigned += alloc[i]
		rems = append(rems, remainder{idx: i, frac: exact - float64(alloc[i])})
	}
	sort.SliceStable(rems, func(a, b int) bool {
		if rems[a].frac != rems[b].frac {
			return rems[a].frac > rems[b].frac
		}
		return len(strata[rems[a].idx].members) > len(strata[rems[b].idx].members)
	})
	for _, r := range rems {
		if assigned >= total {
			break
		}
		if alloc[r.idx] < len(strata[r.idx].members) {
			alloc[r.idx]++
			assigned++
		}
	}
	return alloc
}

func shuffle(rng *rand.Rand, ids []cohort.PatientID) {
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
