package infra

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerProductionEmitsJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	logger := Component(newLogger("production", &buf), "orchestrator")
	logger.Debug().Msg("hidden")
	logger.Info().Str("job_id", "j1").Msg("job completed")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "orchestrator" || entry["service"] != "menu3d" {
		t.Fatalf("unexpected fields: %v", entry)
	}
	if entry["job_id"] != "j1" {
		t.Fatalf("job_id = %v", entry["job_id"])
	}
}

func TestNewLoggerHonoursLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	var buf bytes.Buffer
	logger := newLogger("production", &buf)
	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}
