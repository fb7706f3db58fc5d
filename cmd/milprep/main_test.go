package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"milprep/internal/features"
	"milprep/internal/testsupport"
)

func TestReconcileReportsCorpus(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.Cohort{Labels: map[string]int{"A": 3, "B": 2}, Slides: 2, Instances: 4, Dim: 3})

	out, _, err := runCLI(t, []string{"reconcile", "--bag-sizes"}, env.configPath)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	requireContains(t, out, "Patients: 5")
	requireContains(t, out, "Slides: 10")
	requireContains(t, out, "No reconciliation issues")
	requireContains(t, out, "Instances per patient: min 8")

	if err := os.Remove(filepath.Join(env.cfg.Paths.FeatureDir, "A-000-slide0.mpk")); err != nil {
		t.Fatalf("remove archive: %v", err)
	}
	out, _, err = runCLI(t, []string{"reconcile", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("reconcile --json: %v", err)
	}
	var payload reconcileOutput
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode reconcile output: %v", err)
	}
	if payload.Patients != 5 || payload.Slides != 9 {
		t.Fatalf("unexpected totals: %+v", payload)
	}
	if len(payload.MissingFeatures) != 1 || !strings.HasSuffix(payload.MissingFeatures[0], "A-000-slide0.mpk") {
		t.Fatalf("expected one missing archive, got %v", payload.MissingFeatures)
	}
	if payload.Labels["A"] != 3 || payload.Labels["B"] != 2 {
		t.Fatalf("unexpected label counts: %v", payload.Labels)
	}
}

func TestPlanRecordsRunAndCategories(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.Cohort{Labels: map[string]int{"A": 8, "B": 8}, Instances: 3, Dim: 2},
		testsupport.WithBagSize(4, 2),
		testsupport.WithMinCategoryCount(2),
		testsupport.WithSeededSampling(1),
	)

	out, _, err := runCLI(t, []string{"plan", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	var payload planOutput
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode plan output: %v", err)
	}
	if payload.TrainPatients+payload.ValidPatients != 16 {
		t.Fatalf("expected 16 patients across partitions, got %+v", payload)
	}
	if payload.Mode != "split" || payload.DimFeatures != 2 {
		t.Fatalf("unexpected plan: %+v", payload)
	}
	if len(payload.Categories) != 2 || payload.Categories[0].Name != "A" {
		t.Fatalf("unexpected categories: %+v", payload.Categories)
	}
	if payload.Manifest == "" {
		t.Fatal("expected run to be recorded")
	}

	out, _, err = runCLI(t, []string{"categories"}, env.configPath)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	requireContains(t, out, payload.RunID)
	requireContains(t, out, "WEIGHT")

	out, _, err = runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, payload.RunID)
}

func TestPlanWithoutManifest(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.Cohort{Labels: map[string]int{"A": 4, "B": 4}, Instances: 2, Dim: 2},
		testsupport.WithBagSize(2, 2),
		testsupport.WithMinCategoryCount(2),
	)

	out, _, err := runCLI(t, []string{"plan", "--no-manifest"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "Train patients:")

	out, _, err = runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	if _, _, err := runCLI(t, []string{"categories"}, env.configPath); err == nil {
		t.Fatal("expected categories to fail without recorded runs")
	}
}

func TestPlanFailsGating(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.Cohort{Labels: map[string]int{"A": 4, "B": 4}, Instances: 2, Dim: 2},
		testsupport.WithBagSize(2, 2),
	)

	_, _, err := runCLI(t, []string{"plan"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "fewer than 16") {
		t.Fatalf("expected gating failure, got %v", err)
	}
}

func TestInspectArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slide.mpk")
	testsupport.WriteArchive(t, path, 7, 5, 0)

	out, _, err := runCLI(t, []string{"inspect", path}, "")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "Instances: 7")
	requireContains(t, out, "Feature width: 5")

	if _, _, err := runCLI(t, []string{"inspect", path, "--dataset", "other"}, ""); err == nil {
		t.Fatal("expected missing table error")
	} else if !strings.Contains(err.Error(), features.ErrTableNotFound.Error()) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPreflightCommand(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.Cohort{Labels: map[string]int{"A": 2, "B": 2}})

	out, _, err := runCLI(t, []string{"preflight"}, env.configPath)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "Clinical table")
	requireContains(t, out, "Manifest")

	if err := os.RemoveAll(env.cfg.Paths.FeatureDir); err != nil {
		t.Fatalf("remove feature dir: %v", err)
	}
	out, _, err = runCLI(t, []string{"preflight"}, env.configPath)
	if err == nil {
		t.Fatal("expected preflight to fail without a feature directory")
	}
	requireContains(t, out, "FAIL")
}
