package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"milprep/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MILPREP_FEATURE_DIR", "~/features")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, ".local", "share", "milprep", "output")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, wantOutput)
	}
	if cfg.Paths.FeatureDir != filepath.Join(tempHome, "features") {
		t.Fatalf("expected feature dir from env, got %q", cfg.Paths.FeatureDir)
	}
	if cfg.Manifest.Path != filepath.Join(wantOutput, "manifest.db") {
		t.Fatalf("unexpected manifest path: %q", cfg.Manifest.Path)
	}
	if cfg.Columns.Patient != "PATIENT" || cfg.Columns.Filename != "FILENAME" {
		t.Fatalf("unexpected default columns: %+v", cfg.Columns)
	}
	if cfg.Gating.MinCategoryCount != 16 {
		t.Fatalf("expected min category count 16, got %d", cfg.Gating.MinCategoryCount)
	}
	if cfg.Dataset.Sampling != config.SamplingEntropy {
		t.Fatalf("expected entropy sampling by default, got %q", cfg.Dataset.Sampling)
	}
	if !cfg.Dataset.DropMissingGroundTruth {
		t.Fatal("expected patients without ground truth to be dropped by default")
	}
	if err := cfg.ValidateSources(); err == nil {
		t.Fatal("expected ValidateSources to fail without tables")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "milprep.toml")

	type payload struct {
		Paths struct {
			CliniTable string `toml:"clini_table"`
			SlideTable string `toml:"slide_table"`
			FeatureDir string `toml:"feature_dir"`
		} `toml:"paths"`
		Columns struct {
			GroundTruth string `toml:"ground_truth"`
		} `toml:"columns"`
		Dataset struct {
			Categories []string `toml:"categories"`
			Sampling   string   `toml:"sampling"`
		} `toml:"dataset"`
		Features struct {
			Extension string `toml:"extension"`
		} `toml:"features"`
	}
	custom := payload{}
	custom.Paths.CliniTable = filepath.Join(tempDir, "clini.csv")
	custom.Paths.SlideTable = filepath.Join(tempDir, "slide.csv")
	custom.Paths.FeatureDir = filepath.Join(tempDir, "feats")
	custom.Columns.GroundTruth = "isMSIH"
	custom.Dataset.Categories = []string{" MSIH ", "nonMSIH", "MSIH", ""}
	custom.Dataset.Sampling = "SEEDED"
	custom.Features.Extension = "MPK"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if err := cfg.ValidateSources(); err != nil {
		t.Fatalf("ValidateSources: %v", err)
	}
	if got := strings.Join(cfg.Dataset.Categories, ","); got != "MSIH,nonMSIH" {
		t.Fatalf("unexpected categories: %q", got)
	}
	if cfg.Dataset.Sampling != config.SamplingSeeded {
		t.Fatalf("unexpected sampling: %q", cfg.Dataset.Sampling)
	}
	if cfg.Features.Extension != ".mpk" {
		t.Fatalf("unexpected extension: %q", cfg.Features.Extension)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"full bags need batch size one", func(c *config.Config) { c.Dataset.BagSize = 0 }, "dataset.batch_size must be 1"},
		{"valid fraction bounds", func(c *config.Config) { c.Split.ValidFraction = 1 }, "split.valid_fraction"},
		{"single fold", func(c *config.Config) { c.Split.NSplits = 1 }, "split.n_splits"},
		{"min categories", func(c *config.Config) { c.Gating.MinCategories = 1 }, "gating.min_categories"},
		{"sampling mode", func(c *config.Config) { c.Dataset.Sampling = "random" }, "dataset.sampling"},
		{"column clash", func(c *config.Config) { c.Columns.Filename = c.Columns.Patient }, "columns.patient"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: got %q want substring %q", err.Error(), tc.want)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Columns.GroundTruth != "isMSIH" {
		t.Fatalf("unexpected ground truth column: %q", cfg.Columns.GroundTruth)
	}
	if cfg.Dataset.BagSize != 512 {
		t.Fatalf("unexpected bag size: %d", cfg.Dataset.BagSize)
	}
}
