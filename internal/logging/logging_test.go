package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/afroash/climate-agent/internal/config"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Str("agent", "a1").Msg("Agent started")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["message"] != "Agent started" || entry["agent"] != "a1" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry should carry a timestamp")
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.Debug().Msg("Sensor read")

	out := buf.String()
	if !strings.Contains(out, "Sensor read") {
		t.Errorf("output = %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Error("text format should not emit JSON")
	}
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "chatty"}, &buf)

	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug should be filtered, got %q", buf.String())
	}
	logger.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Error("info should be written")
	}
}
