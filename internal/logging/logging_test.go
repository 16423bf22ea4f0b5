package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"folder-sanitizer/internal/config"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LoggingCfg{}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("sweep started", "roots", 2)
	l.Warn("slow")
	l.Debug("hidden")
	l.Error("failed", "path", "/x")

	out := buf.String()
	for _, want := range []string{"[INFO] sweep started roots 2", "[WARN] slow", "[ERROR] failed path /x"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line logged without debug enabled:\n%s", out)
	}
}

func TestDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LoggingCfg{Debug: true}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Debug("visible")
	if !strings.Contains(buf.String(), "[DEBUG] visible") {
		t.Errorf("debug line missing: %q", buf.String())
	}
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sanitizer.log")
	var console bytes.Buffer
	l, err := New(config.LoggingCfg{File: path, MaxSizeMB: 1, MaxAgeDays: 1, MaxBackups: 1}, &console)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("renamed", "path", "/srv/a")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] renamed path /srv/a") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(console.String(), "[INFO] renamed") {
		t.Errorf("console = %q", console.String())
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("nothing")
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
