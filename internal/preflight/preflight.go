package preflight

import (
	"context"

	"milprep/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	clini := CheckTable("Clinical table", cfg.Paths.CliniTable, cfg.Columns.Patient, cfg.Columns.GroundTruth)
	results = append(results, clini)
	results = append(results, CheckTable("Slide table", cfg.Paths.SlideTable, cfg.Columns.Patient, cfg.Columns.Filename))

	results = append(results, CheckDirectoryAccess("Feature directory", cfg.Paths.FeatureDir, false))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir, true))

	if cfg.Manifest.Enabled {
		results = append(results, CheckManifest(ctx, cfg.Manifest.Path))
	}

	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
