package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"

	"milprep/internal/cohort"
	"milprep/internal/config"
	"milprep/internal/manifest"
)

// ConfigDigest fingerprints the effective configuration.
func ConfigDigest(cfg *config.Config) (string, error) {
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// ManifestRun converts the plan into its manifest record.
func (p *Plan) ManifestRun(cfg *config.Config) (manifest.Run, error) {
	digest, err := ConfigDigest(cfg)
	if err != nil {
		return manifest.Run{}, err
	}
	mode := "split"
	if len(p.Folds) > 0 {
		mode = fmt.Sprintf("kfold:%d", len(p.Folds))
	}
	run := manifest.Run{
		ID:            p.RunID,
		CreatedAt:     time.Now(),
		ConfigDigest:  digest,
		Mode:          mode,
		BagSize:       cfg.Dataset.BagSize,
		DimFeatures:   p.DimFeatures,
		ValidFraction: cfg.Split.ValidFraction,
		SplitSeed:     cfg.Split.Seed,
	}
	for i, name := range p.Categories {
		run.Categories = append(run.Categories, manifest.Category{Name: name, Count: p.Counts[i], Weight: p.Weights[i]})
	}
	run.Assignments = append(run.Assignments, assignments(p.Corpus, p.Train, manifest.PartitionTrain)...)
	run.Assignments = append(run.Assignments, assignments(p.Corpus, p.Valid, manifest.PartitionValid)...)
	run.Diagnostics = diagnosticRecords(p.Diagnostics)
	return run, nil
}

func assignments(corpus cohort.Corpus, ids []cohort.PatientID, partition manifest.Partition) []manifest.Assignment {
	out := make([]manifest.Assignment, 0, len(ids))
	for _, id := range ids {
		rec := corpus[id]
		a := manifest.Assignment{Patient: string(id), Partition: partition, Slides: len(rec.FeatureFiles)}
		if label, ok := rec.GroundTruth.Label(); ok {
			a.GroundTruth = &label
		}
		out = append(out, a)
	}
	return out
}

func diagnosticRecords(diag cohort.Diagnostics) []manifest.Diagnostic {
	var out []manifest.Diagnostic
	for _, id := range diag.PatientsWithoutSlides {
		out = append(out, manifest.Diagnostic{Kind: manifest.KindPatientWithoutSlides, Subject: string(id)})
	}
	for _, id := range diag.PatientsWithoutGroundTruth {
		out = append(out, manifest.Diagnostic{Kind: manifest.KindPatientWithoutGroundTruth, Subject: string(id)})
	}
	for _, path := range diag.MissingFeatures {
		out = append(out, manifest.Diagnostic{Kind: manifest.KindMissingFeatures, Subject: string(path)})
	}
	return out
}
