package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := New(dir, "debug")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	log.Info("stream connected")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "stream connected") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(t.TempDir(), "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := NewConsole("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
