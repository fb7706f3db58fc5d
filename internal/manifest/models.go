package manifest

import "time"

// Partition names the split a patient was assigned to.
type Partition string

const (
	PartitionTrain Partition = "train"
	PartitionValid Partition = "valid"
)

// Diagnostic kinds recorded for a run.
const (
	KindPatientWithoutSlides      = "patient_without_slides"
	KindPatientWithoutGroundTruth = "patient_without_ground_truth"
	KindMissingFeatures           = "missing_features"
)

// Category is one entry of a run's one-hot order.
type Category struct {
	Name   string
	Count  int
	Weight float64
}

// Assignment records the partition of one patient. GroundTruth is nil when unknown.
type Assignment struct {
	Patient     string
	Partition   Partition
	GroundTruth *string
	Slides      int
}

// Diagnostic is one reconciliation finding.
type Diagnostic struct {
	Kind    string
	Subject string
}

// Run is everything persisted about one preparation run.
type Run struct {
	ID            string
	CreatedAt     time.Time
	ConfigDigest  string
	Mode          string
	BagSize       int
	DimFeatures   int
	ValidFraction float64
	SplitSeed     uint64
	Categories    []Category
	Assignments   []Assignment
	Diagnostics   []Diagnostic
}

func (r Run) countPartition(p Partition) int {
	n := 0
	for _, a := range r.Assignments {
		if a.Partition == p {
			n++
		}
	}
	return n
}

// RunSummary is the run row without its child records.
type RunSummary struct {
	ID            string
	CreatedAt     time.Time
	ConfigDigest  string
	Mode          string
	BagSize       int
	DimFeatures   int
	ValidFraction float64
	SplitSeed     uint64
	TrainPatients int
	ValidPatients int
}
