package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"milprep/internal/config"
	"milprep/internal/logging"
)

func newFileLogger(t *testing.T) (string, func() string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "milprep.log")
	return logPath, func() string {
		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(content)
	}
}

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Info("hello")
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "milprep.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller", logging.Int("patients", 3))

	content := read()
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if !strings.Contains(content, "- Patients: 3") {
		t.Fatalf("expected formatted patients field, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("message with caller")

	if content := read(); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerShowsRunAndStageSubject(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithStage(logging.WithRunID(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427"), "reconcile")
	component := logging.NewComponentLogger(logger, "cohort")
	logging.WithContext(ctx, component).Info("reconciled")

	content := read()
	for _, want := range []string{"[cohort]", "Run 1b4e28ba (reconcile)", "reconciled"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestJSONLoggerEmitsStructuredFields(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "feature files missing", "missing_features", logging.Strings("slides", []string{"s3.mpk"}))

	line := strings.TrimSpace(read())
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("decode json log %q: %v", line, err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	if payload["event_type"] != "missing_features" {
		t.Fatalf("unexpected event type: %v", payload["event_type"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key in %v", payload)
	}
	if _, ok := payload["impact"]; !ok {
		t.Fatalf("expected default impact in %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("ignored", logging.Error(errors.New("boom")))
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("expected no-op logger to be disabled")
	}
}

type patientID string

func TestSubjectsCarryCountAndIDs(t *testing.T) {
	attrs := logging.Subjects(logging.FieldPatientIDs, []patientID{"P1", "P2"})
	if len(attrs) != 2 {
		t.Fatalf("expected two attrs, got %d", len(attrs))
	}
	if attrs[0].Key != logging.FieldCount || attrs[0].Value.Int64() != 2 {
		t.Fatalf("unexpected count attr: %v", attrs[0])
	}
	ids, ok := attrs[1].Value.Any().([]string)
	if !ok || len(ids) != 2 || ids[0] != "P1" {
		t.Fatalf("unexpected ids attr: %v", attrs[1])
	}
}

func TestJSONLoggerReadsRunFromContext(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithStage(logging.WithRunID(context.Background(), "run-1"), "split")
	logger.InfoContext(ctx, "split planned")
	logging.WithContext(ctx, logger).InfoContext(ctx, "bound")

	lines := strings.Split(strings.TrimSpace(read()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %q", lines)
	}
	for _, line := range lines {
		if strings.Count(line, `"run_id"`) != 1 {
			t.Fatalf("expected exactly one run_id in %q", line)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			t.Fatalf("decode json log %q: %v", line, err)
		}
		if payload["run_id"] != "run-1" || payload["stage"] != "split" {
			t.Fatalf("unexpected context fields: %v", payload)
		}
	}
}
