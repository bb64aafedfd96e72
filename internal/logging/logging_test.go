package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	if dir == "" {
		t.Fatal("DefaultLogDir returned empty string")
	}
	if !contains(dir, ".docindex") || !contains(dir, "logs") {
		t.Errorf("DefaultLogDir should contain .docindex/logs, got: %s", dir)
	}
}

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "worker.log" {
		t.Errorf("DefaultLogPath should end with worker.log, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 || !cfg.WriteToStderr {
		t.Errorf("unexpected default config: %+v", cfg)
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()
	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
}

func TestSetup_TagsRecordsWithDaemonAttribute(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	cfg := Config{
		Level:         "debug",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      3,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	logger.Info("daemon ready")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var rec map[string]any
	firstLine := bytes.SplitN(content, []byte("\n"), 2)[0]
	if err := json.Unmarshal(firstLine, &rec); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if rec["daemon"] != "docindexd" {
		t.Errorf("expected daemon=docindexd attribute, got: %v", rec["daemon"])
	}
}

func TestComponent_TagsChildLoggerWithoutMutatingParent(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "components.log")

	logger, cleanup, err := Setup(Config{
		Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 3, WriteToStderr: false,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	watcherLog := Component(logger, "watcher")
	watcherLog.Info("started")
	logger.Info("unscoped")

	lines := bytes.Split(bytes.TrimRight(mustRead(t, logPath), "\n"), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	var scoped, unscoped map[string]any
	if err := json.Unmarshal(lines[0], &scoped); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if err := json.Unmarshal(lines[1], &unscoped); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if scoped["component"] != "watcher" {
		t.Errorf("expected component=watcher on scoped logger, got: %v", scoped["component"])
	}
	if _, ok := unscoped["component"]; ok {
		t.Error("Component should not mutate the parent logger")
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return b
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
	}

	for _, tc := range tests {
		level := LevelFromString(tc.input)
		if level.String() != tc.expected {
			t.Errorf("LevelFromString(%q) = %s, want %s", tc.input, level.String(), tc.expected)
		}
	}
}

func TestFindLogFile_NotFound(t *testing.T) {
	if _, err := FindLogFile("/nonexistent/path/to/log.log"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")
	if err := os.WriteFile(logPath, []byte("test"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	found, err := FindLogFile(logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != logPath {
		t.Errorf("expected %s, got %s", logPath, found)
	}
}

func TestFindLogFile_DefaultsToWorkerLog(t *testing.T) {
	if _, err := FindLogFile(""); err == nil {
		t.Skip("a prior test run left a worker.log in place; default-path lookup succeeded")
	} else if !contains(err.Error(), "worker") {
		t.Errorf("expected error to mention the worker log, got: %v", err)
	}
}

func TestEnsureLogDir(t *testing.T) {
	if err := EnsureLogDir(); err != nil {
		t.Fatalf("EnsureLogDir failed: %v", err)
	}
	info, err := os.Stat(DefaultLogDir())
	if err != nil || !info.IsDir() {
		t.Error("log directory should exist after EnsureLogDir")
	}
}

func contains(s, substr string) bool {
	return len(substr) == 0 || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
