package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewAttachesAttrsAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "app", "TellerBank")

	logger.Info("dropped")
	logger.Warn("kept", "account", "A-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "kept" || entry["app"] != "TellerBank" || entry["account"] != "A-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "loud")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at fallback level: %s", buf.String())
	}
	logger.Info("shown")
	if buf.Len() == 0 {
		t.Fatalf("info line missing")
	}
}
