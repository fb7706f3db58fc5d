package split_test

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"milprep/internal/cohort"
	"milprep/internal/split"
)

func population(counts map[string]int) ([]cohort.PatientID, []cohort.GroundTruth) {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	var (
		ids    []cohort.PatientID
		truths []cohort.GroundTruth
	)
	for _, label := range labels {
		for i := 0; i < counts[label]; i++ {
			ids = append(ids, cohort.PatientID(fmt.Sprintf("%s-%03d", label, i)))
			if label == "" {
				truths = append(truths, cohort.Unknown())
			} else {
				truths = append(truths, cohort.Known(label))
			}
		}
	}
	return ids, truths
}

func TestStratifiedPreservesProportions(t *testing.T) {
	cases := []map[string]int{
		{"A": 50, "B": 50},
		{"A": 90, "B": 7, "C": 3},
		{"A": 17, "B": 16, "": 5},
		{"A": 1, "B": 1},
	}
	for _, counts := range cases {
		ids, truths := population(counts)
		train, valid, err := split.Stratified(ids, truths, 0.25, 0)
		require.NoError(t, err)
		require.NoError(t, split.CheckDisjoint(train, valid))
		require.Len(t, append(slices.Clone(train), valid...), len(ids))

		n := len(ids)
		nValid := int(math.Ceil(0.25 * float64(n)))
		require.Len(t, valid, min(max(nValid, 1), n-1))

		labelOf := make(map[cohort.PatientID]string, n)
		for i, id := range ids {
			labelOf[id] = truths[i].String()
		}
		perLabel := map[string]int{}
		for _, id := range valid {
			perLabel[labelOf[id]]++
		}
		for label, size := range counts {
			key := label
			if key == "" {
				key = cohort.Unknown().String()
			}
			exact := float64(len(valid)) * float64(size) / float64(n)
			require.InDelta(t, exact, float64(perLabel[key]), 1.0, "label %q in %v", key, counts)
		}
	}
}

func TestStratifiedIsDeterministic(t *testing.T) {
	ids, truths := population(map[string]int{"A": 40, "B": 24})

	trainA, validA, err := split.Stratified(ids, truths, 0.25, 7)
	require.NoError(t, err)
	trainB, validB, err := split.Stratified(ids, truths, 0.25, 7)
	require.NoError(t, err)
	require.Equal(t, trainA, trainB)
	require.Equal(t, validA, validB)

	_, validC, err := split.Stratified(ids, truths, 0.25, 8)
	require.NoError(t, err)
	require.NotEqual(t, validA, validC)
}

func TestStratifiedDoesNotMutateInput(t *testing.T) {
	ids, truths := population(map[string]int{"A": 10, "B": 10})
	before := slices.Clone(ids)
	_, _, err := split.Stratified(ids, truths, 0.3, 1)
	require.NoError(t, err)
	require.Equal(t, before, ids)
}

func TestStratifiedRejectsBadInput(t *testing.T) {
	ids, truths := population(map[string]int{"A": 4})

	_, _, err := split.Stratified(ids, truths[:3], 0.25, 0)
	require.ErrorIs(t, err, split.ErrLengthMismatch)
	_, _, err = split.Stratified(ids, truths, 1.0, 0)
	require.ErrorIs(t, err, split.ErrFraction)
	_, _, err = split.Stratified(ids[:1], truths[:1], 0.25, 0)
	require.ErrorIs(t, err, split.ErrTooFewPatients)
}

func TestKFoldCoversEveryPatientOnce(t *testing.T) {
	ids, truths := population(map[string]int{"A": 23, "B": 11, "": 4})

	folds, err := split.KFold(ids, truths, 5, 3)
	require.NoError(t, err)
	require.Len(t, folds, 5)

	seen := map[cohort.PatientID]int{}
	sizes := make([]int, 0, len(folds))
	for _, fold := range folds {
		require.NoError(t, split.CheckDisjoint(fold.Train, fold.Valid))
		require.Equal(t, len(ids), len(fold.Train)+len(fold.Valid))
		for _, id := range fold.Valid {
			seen[id]++
		}
		sizes = append(sizes, len(fold.Valid))
	}
	require.Len(t, seen, len(ids))
	for id, n := range seen {
		require.Equal(t, 1, n, "patient %s", id)
	}
	require.LessOrEqual(t, slices.Max(sizes)-slices.Min(sizes), 1)
}

func TestKFoldRejectsTooFewFolds(t *testing.T) {
	ids, truths := population(map[string]int{"A": 4})
	_, err := split.KFold(ids, truths, 1, 0)
	require.Error(t, err)
	_, err = split.KFold(ids, truths, 5, 0)
	require.ErrorIs(t, err, split.ErrTooFewPatients)
}

func TestCheckDisjointReportsOverlap(t *testing.T) {
	err := split.CheckDisjoint(
		[]cohort.PatientID{"P1", "P2", "P3"},
		[]cohort.PatientID{"P3", "P4", "P1"},
	)
	var violation *split.InvariantViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, []cohort.PatientID{"P1", "P3"}, violation.Overlap)
	require.Contains(t, err.Error(), "unreachable:")
}
