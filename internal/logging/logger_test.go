package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aveline/internal/config"
	"aveline/internal/logging"
)

func TestNewWritesConsoleLinesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "library").Info("book imported", logging.String("title", "Moby Dick"))
	logger.Debug("hidden")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "INFO library: book imported") {
		t.Fatalf("unexpected console line: %q", text)
	}
	if !strings.Contains(text, `title="Moby Dick"`) {
		t.Fatalf("expected quoted attribute, got %q", text)
	}
	if strings.Contains(text, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %q", text)
	}
}

func TestNewJSONLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.json")
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry["level"] != "info" || entry["msg"] != "json message" || entry["k"] != "v" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFromConfigCreatesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")

	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "aveline.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

type captureHandler struct {
	records []slog.Record
	attrs   []slog.Attr
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.attrs = append(h.attrs, attrs...)
	return h
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func TestWithContextAddsFields(t *testing.T) {
	ctx := logging.WithRequestID(context.Background(), "req-xyz")
	ctx = logging.WithBookKey(ctx, "book-1")

	handler := &captureHandler{}
	logging.WithContext(ctx, slog.New(handler)).Info("contextual log")

	got := map[string]string{}
	for _, attr := range handler.attrs {
		got[attr.Key] = attr.Value.String()
	}
	if got[logging.FieldRequestID] != "req-xyz" {
		t.Fatalf("request id = %q", got[logging.FieldRequestID])
	}
	if got[logging.FieldBookKey] != "book-1" {
		t.Fatalf("book key = %q", got[logging.FieldBookKey])
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	handler := &captureHandler{}
	logging.WarnWithContext(slog.New(handler), "careful", "cover_missing")

	if len(handler.records) != 1 {
		t.Fatalf("expected one record, got %d", len(handler.records))
	}
	keys := map[string]bool{}
	handler.records[0].Attrs(func(a slog.Attr) bool {
		keys[a.Key] = true
		return true
	})
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if !keys[key] {
			t.Fatalf("missing %s", key)
		}
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "aveline-old.log")
	current := filepath.Join(dir, "aveline-current.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, current, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), dir, "aveline-*.log", 3, current)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old log should be removed")
	}
	if _, err := os.Stat(current); err != nil {
		t.Fatalf("current log should remain: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("unmatched file should remain: %v", err)
	}
	if logging.CleanupOldLogs(nil, dir, "*", 0) != 0 {
		t.Fatal("zero retention must not prune")
	}
}
