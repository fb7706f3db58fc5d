package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeColumns()
	c.normalizeFeatures()
	c.normalizeDataset()
	if err := c.normalizeManifest(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.FeatureDir) == "" {
		if value, ok := os.LookupEnv("MILPREP_FEATURE_DIR"); ok {
			c.Paths.FeatureDir = strings.TrimSpace(value)
		}
	}
	if value, ok := os.LookupEnv("MILPREP_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}

	var err error
	if c.Paths.CliniTable, err = expandPath(strings.TrimSpace(c.Paths.CliniTable)); err != nil {
		return fmt.Errorf("paths.clini_table: %w", err)
	}
	if c.Paths.SlideTable, err = expandPath(strings.TrimSpace(c.Paths.SlideTable)); err != nil {
		return fmt.Errorf("paths.slide_table: %w", err)
	}
	if c.Paths.FeatureDir, err = expandPath(strings.TrimSpace(c.Paths.FeatureDir)); err != nil {
		return fmt.Errorf("paths.feature_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeColumns() {
	c.Columns.Patient = strings.TrimSpace(c.Columns.Patient)
	if c.Columns.Patient == "" {
		c.Columns.Patient = defaultPatientColumn
	}
	c.Columns.Filename = strings.TrimSpace(c.Columns.Filename)
	if c.Columns.Filename == "" {
		c.Columns.Filename = defaultFilenameColumn
	}
	c.Columns.GroundTruth = strings.TrimSpace(c.Columns.GroundTruth)
}

func (c *Config) normalizeFeatures() {
	c.Features.Dataset = strings.TrimSpace(c.Features.Dataset)
	if c.Features.Dataset == "" {
		c.Features.Dataset = defaultDatasetName
	}
	ext := strings.TrimSpace(c.Features.Extension)
	if ext == "" {
		ext = defaultFeatureExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Features.Extension = strings.ToLower(ext)
}

func (c *Config) normalizeDataset() {
	if c.Dataset.BagSize < 0 {
		c.Dataset.BagSize = 0
	}
	if c.Dataset.NumWorkers <= 0 {
		c.Dataset.NumWorkers = 1
	}
	c.Dataset.Sampling = strings.ToLower(strings.TrimSpace(c.Dataset.Sampling))
	if c.Dataset.Sampling == "" {
		c.Dataset.Sampling = SamplingEntropy
	}

	if len(c.Dataset.Categories) > 0 {
		cats := make([]string, 0, len(c.Dataset.Categories))
		seen := make(map[string]struct{}, len(c.Dataset.Categories))
		for _, cat := range c.Dataset.Categories {
			trimmed := strings.TrimSpace(cat)
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			cats = append(cats, trimmed)
		}
		c.Dataset.Categories = cats
	}
}

func (c *Config) normalizeManifest() error {
	if strings.TrimSpace(c.Manifest.Path) == "" {
		c.Manifest.Path = filepath.Join(c.Paths.OutputDir, defaultManifestName)
	}
	var err error
	if c.Manifest.Path, err = expandPath(strings.TrimSpace(c.Manifest.Path)); err != nil {
		return fmt.Errorf("manifest.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
