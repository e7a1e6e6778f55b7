package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Fatalf("expected debug")
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("expected info fallback")
	}
}

func TestComponentLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "info", "json")
	NewComponentLogger(base, "session").Info("session_started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["component"] != "session" {
		t.Fatalf("expected component=session, got %v", entry["component"])
	}
	if entry["msg"] != "session_started" {
		t.Fatalf("unexpected msg %v", entry["msg"])
	}
}
