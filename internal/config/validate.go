package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateColumns(); err != nil {
		return err
	}
	if err := c.validateDataset(); err != nil {
		return err
	}
	if err := c.validateSplit(); err != nil {
		return err
	}
	if err := c.validateGating(); err != nil {
		return err
	}
	return nil
}

// ValidateSources checks that the data source paths are set. Commands that
// only touch archives or the manifest skip this check.
func (c *Config) ValidateSources() error {
	if c.Paths.CliniTable == "" {
		return errors.New("paths.clini_table must be set")
	}
	if c.Paths.SlideTable == "" {
		return errors.New("paths.slide_table must be set")
	}
	if c.Paths.FeatureDir == "" {
		return errors.New("paths.feature_dir must be set (or set MILPREP_FEATURE_DIR)")
	}
	if c.Columns.GroundTruth == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/milprep/config.toml"
		}
		return fmt.Errorf("columns.ground_truth is required. Edit %s (create with 'milprep config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateColumns() error {
	if c.Columns.Patient == c.Columns.Filename {
		return errors.New("columns.patient and columns.filename must differ")
	}
	if c.Columns.GroundTruth != "" && c.Columns.GroundTruth == c.Columns.Patient {
		return errors.New("columns.ground_truth and columns.patient must differ")
	}
	return nil
}

func (c *Config) validateDataset() error {
	if c.Dataset.BatchSize <= 0 {
		return errors.New("dataset.batch_size must be positive")
	}
	switch c.Dataset.Sampling {
	case SamplingSeeded, SamplingEntropy:
	default:
		return fmt.Errorf("dataset.sampling must be %q or %q, got %q", SamplingSeeded, SamplingEntropy, c.Dataset.Sampling)
	}
	if c.FullBags() && c.Dataset.BatchSize != 1 {
		return errors.New("dataset.batch_size must be 1 when dataset.bag_size is 0 (full bags)")
	}
	return nil
}

func (c *Config) validateSplit() error {
	if c.Split.ValidFraction <= 0 || c.Split.ValidFraction >= 1 {
		return errors.New("split.valid_fraction must be between 0 and 1 (exclusive)")
	}
	if c.Split.NSplits == 1 || c.Split.NSplits < 0 {
		return errors.New("split.n_splits must be 0 (disabled) or at least 2")
	}
	return nil
}

func (c *Config) validateGating() error {
	if c.Gating.MinCategoryCount < 0 {
		return errors.New("gating.min_category_count must be >= 0")
	}
	if c.Gating.MinCategories < 2 {
		return errors.New("gating.min_categories must be at least 2")
	}
	return nil
}
