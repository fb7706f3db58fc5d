package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the locations of the three data sources and the output tree.
type Paths struct {
	CliniTable string `toml:"clini_table"`
	SlideTable string `toml:"slide_table"`
	FeatureDir string `toml:"feature_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
}

// Columns names the join columns in the clinical and slide tables.
type Columns struct {
	Patient     string `toml:"patient"`
	GroundTruth string `toml:"ground_truth"`
	Filename    string `toml:"filename"`
}

// Features describes how per-slide feature archives are stored.
type Features struct {
	// Dataset is the name of the N x F table inside each archive.
	Dataset string `toml:"dataset"`
	// Extension is appended to slide table filenames that carry none.
	Extension string `toml:"extension"`
}

// Dataset contains bag assembly and batching settings.
type Dataset struct {
	BagSize                int      `toml:"bag_size"`
	BatchSize              int      `toml:"batch_size"`
	NumWorkers             int      `toml:"num_workers"`
	Categories             []string `toml:"categories"`
	DropMissingGroundTruth bool     `toml:"drop_missing_ground_truth"`
	// Sampling is "seeded" for reproducible bag draws or "entropy" for
	// fresh draws on every access.
	Sampling string `toml:"sampling"`
	Seed     uint64 `toml:"seed"`
}

// Split contains train/validation partition settings.
type Split struct {
	ValidFraction float64 `toml:"valid_fraction"`
	Seed          uint64  `toml:"seed"`
	// NSplits enables stratified k-fold planning when >= 2.
	NSplits int `toml:"n_splits"`
}

// Gating contains the corpus-level checks applied before training.
type Gating struct {
	MinCategoryCount int `toml:"min_category_count"`
	MinCategories    int `toml:"min_categories"`
}

// Manifest contains configuration for the SQLite audit manifest.
type Manifest struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for milprep.
//
// Configuration sections by subsystem:
//   - Paths: clinical/slide tables, feature directory, outputs
//   - Columns: join column names in the source tables
//   - Features: archive dataset name and filename extension
//   - Dataset: bag size, batching, workers, sampling
//   - Split: validation fraction, seed, cross-validation folds
//   - Gating: category population floor
//   - Manifest: audit database location
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Columns  Columns  `toml:"columns"`
	Features Features `toml:"features"`
	Dataset  Dataset  `toml:"dataset"`
	Split    Split    `toml:"split"`
	Gating   Gating   `toml:"gating"`
	Manifest Manifest `toml:"manifest"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/milprep/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("milprep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FullBags reports whether training bags are used unsampled.
func (c *Config) FullBags() bool {
	return c.Dataset.BagSize <= 0
}

// CrossValidation reports whether k-fold planning is enabled.
func (c *Config) CrossValidation() bool {
	return c.Split.NSplits >= 2
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
