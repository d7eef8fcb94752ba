package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerFansOutToBothStreams(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("generation started", "task", "abc123")

	if !strings.Contains(stderr.String(), "generation started") {
		t.Errorf("stderr stream missing record: %q", stderr.String())
	}
	var record map[string]any
	if err := json.Unmarshal(file.Bytes(), &record); err != nil {
		t.Fatalf("file stream is not JSON: %v", err)
	}
	if record["task"] != "abc123" {
		t.Errorf("file record missing attribute: %v", record)
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Debug("noise")
	logger.Info("more noise")

	if stderr.Len() != 0 || file.Len() != 0 {
		t.Errorf("records below the level must be dropped, got stderr=%q file=%q", stderr.String(), file.String())
	}
}

func TestSetupLoggerSurvivesUnwritableFile(t *testing.T) {
	// Path inside a directory that does not exist; the open fails and the
	// logger degrades to stderr only.
	bad := filepath.Join(t.TempDir(), "missing", "inkwell.log")

	logger, cleanup := SetupLogger(bad, slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected a working logger despite the bad path")
	}
	if err := cleanup(); err != nil {
		t.Errorf("cleanup of the fallback logger must be a no-op: %v", err)
	}
}

func TestSetupLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inkwell.log")

	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("log file is not JSON: %v", err)
	}
	if record["msg"] != "hello" {
		t.Errorf("unexpected record: %v", record)
	}
}
