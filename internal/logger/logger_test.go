package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Info("session started", "session_id", "abc", "rows", 3)

	out := buf.String()
	if !strings.Contains(out, "session started") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "session_id=abc") {
		t.Errorf("expected session_id attr in output, got %q", out)
	}
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("expected level marker in output, got %q", out)
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("noise")
	Info("more noise")
	Warn("kept")

	out := buf.String()
	if strings.Contains(out, "noise") {
		t.Errorf("expected debug/info suppressed, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected warn message, got %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("plan ready", "operations", 12)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected valid JSON, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "plan ready" {
		t.Errorf("expected msg field, got %v", record["msg"])
	}
	if record["operations"] != float64(12) {
		t.Errorf("expected operations field, got %v", record["operations"])
	}
}

func TestSetLevelIgnoresInvalid(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("bogus")
	Info("still works")

	if !strings.Contains(buf.String(), "still works") {
		t.Errorf("expected info logging to survive invalid level, got %q", buf.String())
	}
}
