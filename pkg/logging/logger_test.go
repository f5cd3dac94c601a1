package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var evt Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			t.Fatalf("bad log line %q: %v", scanner.Text(), err)
		}
		events = append(events, evt)
	}
	return events
}

func TestLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Info(CategorySession, "open", "session open", map[string]any{"attempt": 1})
	logger.Error(CategoryCommand, "handler_failed", "boom", nil)

	events := readEvents(t, filepath.Join(dir, "gateway.jsonl"))
	if len(events) != 2 {
		t.Fatalf("gateway log has %d events, want 2", len(events))
	}
	if events[0].Category != CategorySession || events[0].EventType != "open" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}

	// Errors are mirrored into the dedicated error log.
	errs := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	if len(errs) != 1 || errs[0].EventType != "handler_failed" {
		t.Errorf("unexpected error log %+v", errs)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Debug(CategoryHTTP, "request", "", nil)
	logger.SetMinLevel(LevelDebug)
	logger.Debug(CategoryHTTP, "request", "", nil)

	events := readEvents(t, filepath.Join(dir, "gateway.jsonl"))
	if len(events) != 1 {
		t.Fatalf("debug filtering wrong, %d events", len(events))
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNopLogger()
	if err := logger.Error(CategorySession, "x", "y", nil); err != nil {
		t.Errorf("nop logger returned %v", err)
	}
}
