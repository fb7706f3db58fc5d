package cohort

import (
	"slices"

	"milprep/internal/features"
)

// PatientID is the unique key of a patient in the clinical table.
type PatientID string

// FeaturePath identifies one slide's feature archive.
type FeaturePath = features.Path

// GroundTruth is either a known label or explicitly unknown. The zero value is Unknown.
type GroundTruth struct {
	label string
	known bool
}

// Known returns a ground truth carrying label.
func Known(label string) GroundTruth {
	return GroundTruth{label: label, known: true}
}

// Unknown returns the absent ground truth.
func Unknown() GroundTruth {
	return GroundTruth{}
}

// Label returns the label and whether it is known.
func (g GroundTruth) Label() (string, bool) {
	return g.label, g.known
}

func (g GroundTruth) IsKnown() bool { return g.known }

func (g GroundTruth) String() string {
	if !g.known {
		return "<unknown>"
	}
	return g.label
}

// PatientRecord is the reconciled view of one patient. FeatureFiles is sorted,
// free of duplicates and never empty.
type PatientRecord struct {
	ID           PatientID
	GroundTruth  GroundTruth
	FeatureFiles []FeaturePath
}

// Corpus maps each retained patient to its record.
type Corpus map[PatientID]PatientRecord

// Patients returns the corpus keys in ascending order.
func (c Corpus) Patients() []PatientID {
	ids := make([]PatientID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Records returns the records of ids in the given order. Unknown ids are skipped.
func (c Corpus) Records(ids []PatientID) []PatientRecord {
	out := make([]PatientRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := c[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Slides returns the number of feature archives across the corpus.
func (c Corpus) Slides() int {
	total := 0
	for _, rec := range c {
		total += len(rec.FeatureFiles)
	}
	return total
}
