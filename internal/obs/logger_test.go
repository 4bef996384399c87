package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Options{Env: "prod", Writer: &buf})
	logger.Info("chat socket open", "conversation", "7")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "chat socket open" {
		t.Errorf("expected msg, got %v", entry["msg"])
	}
	if entry["conversation"] != "7" {
		t.Errorf("expected conversation attr, got %v", entry["conversation"])
	}
}

func TestNewLoggerTextForDev(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Options{Env: "dev", Writer: &buf})
	logger.Info("hello", "k", "v")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("expected text output, got %q", out)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestNewLoggerFormatOverridesEnv(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Options{Env: "dev", Format: "json", Writer: &buf}).Info("x")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON, got %q", buf.String())
	}
}

func TestNewLoggerVerbose(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Options{Format: "json", Writer: &buf}).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug should be filtered, got %q", buf.String())
	}
	NewLogger(Options{Format: "json", Verbose: true, Writer: &buf}).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("verbose should log debug, got %q", buf.String())
	}
}
