package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"trace": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNewStdoutOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := New(&buf, Options{Level: "warn"})
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("shown", slog.String("component", "runner"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines=%q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["component"] != "runner" {
		t.Fatalf("rec=%v", rec)
	}
}

func TestNewTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cyclebot.log")
	var buf bytes.Buffer
	logger, closeFn := New(&buf, Options{Level: "info", File: path, MaxSizeMB: 1})

	logger.Info("cycle found", slog.String("route", "gdax:BTC->kraken:LTC"))
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"cycle found"`) || !strings.Contains(buf.String(), `"msg":"cycle found"`) {
		t.Fatalf("file=%s stdout=%s", data, buf.String())
	}
}
