package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fuse.log")

	l, closer := New(Config{Level: Info, Filename: path, JSON: true})
	defer closer.Close()

	l.Info("hello", "key", "value")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var entry map[string]interface{}
	line := strings.TrimSpace(string(data))
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Unmarshal %q: %v", line, err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want value", entry["key"])
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fuse.log")

	l, closer := New(Config{Level: Warning, Filename: path})
	defer closer.Close()

	l.Info("should be dropped")
	l.Warn("should appear")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "should be dropped") {
		t.Errorf("Info-level message leaked through Warning floor: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("Warning-level message missing: %s", out)
	}
}

func TestTracefBelowDebugFloor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fuse.log")

	l, closer := New(Config{Level: Trace, Filename: path})
	defer closer.Close()

	Tracef(context.Background(), l, "op %s took %dms", "ReadFile", 3)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "op ReadFile took 3ms") {
		t.Errorf("trace message missing: %s", data)
	}

	_ = slog.LevelDebug
}
