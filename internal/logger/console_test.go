package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleLevelsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelInfo).WithComponent("pool")

	log.Debug("hidden %d", 1)
	log.Info("worker %d started", 3)
	log.Warn("slow")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line leaked at info level: %q", out)
	}
	if !strings.Contains(out, "[pool] worker 3 started\n") {
		t.Errorf("missing formatted info line, got %q", out)
	}
	if !strings.Contains(out, "[pool] slow\n") {
		t.Errorf("missing warn line, got %q", out)
	}
}

func TestQuietSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelQuiet)
	log.Error("boom")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"quiet", LevelQuiet},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
