package cohort

import (
	"context"
	"log/slog"
	"slices"

	"milprep/internal/features"
	"milprep/internal/logging"
)

// Options controls Reconcile.
type Options struct {
	// DropMissingGroundTruth excludes patients that appear only in the slide
	// mapping. When false they are retained with an Unknown ground truth.
	DropMissingGroundTruth bool
	// Probe checks archive existence; nil means features.FileStore{}.
	Probe  features.Prober
	Logger *slog.Logger
}

// Diagnostics lists the inconsistencies found between the three sources.
// Every slice is sorted.
type Diagnostics struct {
	PatientsWithoutSlides      []PatientID
	PatientsWithoutGroundTruth []PatientID
	MissingFeatures            []FeaturePath
}

// Empty reports whether no inconsistency was found.
func (d Diagnostics) Empty() bool {
	return len(d.PatientsWithoutSlides) == 0 && len(d.PatientsWithoutGroundTruth) == 0 && len(d.MissingFeatures) == 0
}

// SlideRow is one slide/patient association as listed in a slide table.
type SlideRow struct {
	Path    FeaturePath
	Patient PatientID
	// Key is the slide as written in the source table; empty means Path.
	Key string
}

func (r SlideRow) key() string {
	if r.Key != "" {
		return r.Key
	}
	return string(r.Path)
}

// GroupSlides inverts a slide to patient mapping into a patient to slides
// multimap in a single pass. Slide lists are sorted.
func GroupSlides(slides map[FeaturePath]PatientID) map[PatientID][]FeaturePath {
	grouped := make(map[PatientID][]FeaturePath)
	for path, patient := range slides {
		grouped[patient] = append(grouped[patient], path)
	}
	for _, paths := range grouped {
		slices.Sort(paths)
	}
	return grouped
}

// GroupSlideRows groups a flat association list by patient. A slide listed
// under two different patients is a DuplicateKeyError; a slide repeated for
// the same patient is kept once.
func GroupSlideRows(rows []SlideRow) (map[PatientID][]FeaturePath, error) {
	owner := make(map[FeaturePath]PatientID, len(rows))
	var conflicts []string
	for _, row := range rows {
		prev, seen := owner[row.Path]
		if !seen {
			owner[row.Path] = row.Patient
			continue
		}
		if prev != row.Patient {
			conflicts = append(conflicts, row.key())
		}
	}
	if len(conflicts) > 0 {
		return nil, &DuplicateKeyError{Table: "slide mapping", Column: "slide", Keys: uniqueSorted(conflicts)}
	}
	return GroupSlides(owner), nil
}

// Reconcile joins ground truths, slide ownership and archive existence into a
// corpus. Inconsistencies are logged and returned as diagnostics; a patient
// is kept only when it has a ground-truth entry and at least one existing
// archive. The only error is context cancellation.
func Reconcile(ctx context.Context, truths map[PatientID]GroundTruth, slides map[FeaturePath]PatientID, opts Options) (Corpus, Diagnostics, error) {
	probe := opts.Probe
	if probe == nil {
		probe = features.FileStore{}
	}
	logger := logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "cohort"))

	exists := make(map[FeaturePath]bool, len(slides))
	for path := range slides {
		if err := ctx.Err(); err != nil {
			return nil, Diagnostics{}, err
		}
		exists[path] = probe.Exists(path)
	}

	diag := diagnose(truths, slides, exists)
	logDiagnostics(logger, diag)

	grouped := GroupSlides(slides)

	candidates := truths
	if !opts.DropMissingGroundTruth {
		candidates = make(map[PatientID]GroundTruth, len(truths)+len(grouped))
		for patient := range grouped {
			candidates[patient] = Unknown()
		}
		for patient, truth := range truths {
			candidates[patient] = truth
		}
	}

	corpus := make(Corpus, len(candidates))
	for patient, truth := range candidates {
		var present []FeaturePath
		for _, path := range grouped[patient] {
			if exists[path] {
				present = append(present, path)
			}
		}
		if len(present) == 0 {
			continue
		}
		corpus[patient] = PatientRecord{ID: patient, GroundTruth: truth, FeatureFiles: present}
	}

	logger.Info("reconciled corpus",
		logging.Int("patients", len(corpus)),
		logging.Int("slides", corpus.Slides()),
		logging.Bool("drop_missing_ground_truth", opts.DropMissingGroundTruth),
	)
	return corpus, diag, nil
}

func diagnose(truths map[PatientID]GroundTruth, slides map[FeaturePath]PatientID, exists map[FeaturePath]bool) Diagnostics {
	withSlides := make(map[PatientID]struct{}, len(slides))
	var diag Diagnostics
	for path, patient := range slides {
		withSlides[patient] = struct{}{}
		if !exists[path] {
			diag.MissingFeatures = append(diag.MissingFeatures, path)
		}
	}
	for patient := range truths {
		if _, ok := withSlides[patient]; !ok {
			diag.PatientsWithoutSlides = append(diag.PatientsWithoutSlides, patient)
		}
	}
	for patient := range withSlides {
		if _, ok := truths[patient]; !ok {
			diag.PatientsWithoutGroundTruth = append(diag.PatientsWithoutGroundTruth, patient)
		}
	}
	slices.Sort(diag.PatientsWithoutSlides)
	slices.Sort(diag.PatientsWithoutGroundTruth)
	slices.Sort(diag.MissingFeatures)
	return diag
}

func logDiagnostics(logger *slog.Logger, diag Diagnostics) {
	if len(diag.PatientsWithoutSlides) > 0 {
		attrs := logging.Subjects(logging.FieldPatientIDs, diag.PatientsWithoutSlides)
		logging.WarnWithContext(logger, "some patients have no associated slides", "patients_without_slides",
			append(attrs, logging.String(logging.FieldErrorHint, "check the patient column of the slide table"))...,
		)
	}
	if len(diag.PatientsWithoutGroundTruth) > 0 {
		attrs := logging.Subjects(logging.FieldPatientIDs, diag.PatientsWithoutGroundTruth)
		logging.WarnWithContext(logger, "some patients have no clinical information", "patients_without_ground_truth",
			append(attrs, logging.String(logging.FieldErrorHint, "check the clinical table covers every patient in the slide table"))...,
		)
	}
	if len(diag.MissingFeatures) > 0 {
		attrs := logging.Subjects(logging.FieldSlidePaths, diag.MissingFeatures)
		logging.WarnWithContext(logger, "some feature files could not be found", "missing_features",
			append(attrs, logging.String(logging.FieldErrorHint, "re-run feature extraction for the listed slides"))...,
		)
	}
}
