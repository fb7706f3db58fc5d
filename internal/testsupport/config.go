package testsupport

import (
	"path/filepath"
	"testing"

	"milprep/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Source tables and the feature directory live under BaseDir; the returned
// config is not validated.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CliniTable = filepath.Join(base, "clini.csv")
	cfgVal.Paths.SlideTable = filepath.Join(base, "slide.csv")
	cfgVal.Paths.FeatureDir = filepath.Join(base, "features")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Columns.GroundTruth = "LABEL"
	cfgVal.Manifest.Path = filepath.Join(base, "output", "manifest.db")
	cfgVal.Dataset.NumWorkers = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithGroundTruthColumn overrides the ground-truth column name.
func WithGroundTruthColumn(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Columns.GroundTruth = name
	}
}

// WithBagSize sets the training bag size and batch size.
func WithBagSize(bagSize, batchSize int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dataset.BagSize = bagSize
		b.cfg.Dataset.BatchSize = batchSize
	}
}

// WithMinCategoryCount lowers or raises the category population floor.
func WithMinCategoryCount(floor int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Gating.MinCategoryCount = floor
	}
}

// WithSeededSampling makes bag draws reproducible.
func WithSeededSampling(seed uint64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dataset.Sampling = config.SamplingSeeded
		b.cfg.Dataset.Seed = seed
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CliniTable)
}
