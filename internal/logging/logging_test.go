package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestSetupLevel(t *testing.T) {
	var buf bytes.Buffer
	closer, err := Setup(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = closer() }()

	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestSetupDebugWritesFile(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	closer, err := Setup(Options{Level: "error", Debug: true, Dir: dir, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}

	New("test").Debug("cache warmed", "entries", 3)
	if err := closer(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "cache warmed") {
		t.Errorf("log file = %q, want debug line", data)
	}
	if !strings.Contains(buf.String(), "cache warmed") {
		t.Errorf("output = %q, want debug line", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
	if err := SetLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
	log.SetLevel(log.InfoLevel)
}
