package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesRunLog(t *testing.T) {
	cfg := config.Default()
	runLog := filepath.Join(t.TempDir(), "logs", "vigil-run.log")

	logger, err := logging.NewFromConfig(&cfg, runLog)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("pipeline started")

	if !strings.Contains(readLog(t, runLog), "pipeline started") {
		t.Fatal("expected run log to receive output")
	}
}

func TestConsoleLoggerCallerOnlyAtDebug(t *testing.T) {
	tests := []struct {
		level      string
		wantCaller bool
	}{
		{level: "info", wantCaller: false},
		{level: "debug", wantCaller: true},
	}
	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "console.log")
			logger, err := logging.New(logging.Options{Format: "console", Level: tc.level, OutputPaths: []string{logPath}})
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}
			logger.Info("frame admitted")
			got := strings.Contains(readLog(t, logPath), ".go:")
			if got != tc.wantCaller {
				t.Fatalf("caller present=%v, want %v: %q", got, tc.wantCaller, readLog(t, logPath))
			}
		})
	}
}

func TestConsoleLoggerNeverColorsFiles(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "pipeline").Warn("disk pressure")
	content := readLog(t, logPath)
	if strings.Contains(content, "\x1b[") {
		t.Fatalf("expected no ANSI escapes in file output: %q", content)
	}
	if !strings.Contains(content, "WARN pipeline: disk pressure") {
		t.Fatalf("unexpected console layout: %q", content)
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("event recorded", logging.String(logging.FieldEventID, "0190"))

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &line); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", logging.FieldEventID} {
		if _, ok := line[key]; !ok {
			t.Fatalf("expected key %q in %v", key, line)
		}
	}
	if line["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", line["level"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestComponentLevelOverride(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "override.log")
	logger, err := logging.New(logging.Options{
		Format:          "console",
		Level:           "info",
		OutputPaths:     []string{logPath},
		ComponentLevels: map[string]string{"source": "debug", "storage": "error"},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "source").Debug("reconnect scheduled")
	logging.NewComponentLogger(logger, "storage").Warn("usage high")
	logging.NewComponentLogger(logger, "pipeline").Debug("frame skipped")

	content := readLog(t, logPath)
	if !strings.Contains(content, "reconnect scheduled") {
		t.Fatalf("source debug line should pass override: %q", content)
	}
	if strings.Contains(content, "usage high") {
		t.Fatalf("storage warn line should be suppressed by override: %q", content)
	}
	if strings.Contains(content, "frame skipped") {
		t.Fatalf("pipeline debug line should follow global level: %q", content)
	}
}

func TestWarnWithContextInjectsGuidance(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "detector unavailable", "inference_skipped",
		logging.String(logging.FieldErrorHint, "check detector.url"),
	)

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &line); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if line[logging.FieldEventType] != "inference_skipped" {
		t.Fatalf("unexpected event_type: %v", line[logging.FieldEventType])
	}
	if line[logging.FieldErrorHint] != "check detector.url" {
		t.Fatalf("caller-supplied hint should win: %v", line[logging.FieldErrorHint])
	}
	if line[logging.FieldImpact] == nil {
		t.Fatal("expected default impact to be injected")
	}
}

func TestWithContextAddsPipelineFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithSourceID(context.Background(), "porch")
	ctx = services.WithStage(ctx, "inference")
	ctx = services.WithFrameSeq(ctx, 42)

	logging.WithContext(ctx, logger).Info("detections filtered")

	content := readLog(t, logPath)
	for _, fragment := range []string{`"source":"porch"`, `"stage":"inference"`, `"frame_seq":42`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %s in %q", fragment, content)
		}
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "vigil-20240101T000000.000Z.log")
	current := filepath.Join(dir, "vigil-20990101T000000.000Z.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, current, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -30)
	for _, path := range []string{old, current, other} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{Dir: dir, Pattern: "vigil-*.log", Exclude: []string{current}})

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected stale run log removed, stat err=%v", err)
	}
	for _, kept := range []string{current, other} {
		if _, err := os.Stat(kept); err != nil {
			t.Fatalf("expected %s to remain: %v", kept, err)
		}
	}
}
