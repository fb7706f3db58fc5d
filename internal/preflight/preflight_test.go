package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"milprep/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir, true)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"), false)
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f, false)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clini.csv")
	testsupport.WriteTable(t, path, []string{"PATIENT", "isMSIH"}, []string{"P1", "MSIH"})

	if result := CheckTable("clini", path, "PATIENT", "isMSIH"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := CheckTable("clini", path, "PATIENT", "LABEL")
	if result.Passed {
		t.Fatal("expected failure for missing column")
	}
	if !strings.Contains(result.Detail, "LABEL") {
		t.Fatalf("expected missing column in detail, got %q", result.Detail)
	}
	if result := CheckTable("clini", "", "PATIENT"); result.Passed {
		t.Fatal("expected failure for unconfigured path")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteCohort(t, cfg, testsupport.Cohort{Labels: map[string]int{"A": 2}})
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if !Passed(results) {
		t.Fatalf("expected all checks to pass: %+v", results)
	}

	cfg.Columns.GroundTruth = "missing"
	results = RunAll(context.Background(), cfg)
	if Passed(results) {
		t.Fatal("expected clinical table check to fail")
	}
	if results[0].Passed {
		t.Fatalf("expected clinical table failure first, got %+v", results[0])
	}
}
