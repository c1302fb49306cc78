package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSONWithServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "carpool-matching", "warn")
	logger.Info("dropped")
	logger.Warn("route cache read failed", "key", "a->b")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %d lines", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec["service"] != "carpool-matching" || rec["key"] != "a->b" || rec["level"] != "WARN" {
		t.Fatalf("unexpected record %v", rec)
	}
}
