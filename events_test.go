package claims

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileEventSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := newFileEventSink(dir)
	if err != nil {
		t.Fatal(err)
	}

	e := newEvent(EventPaused, "CLM-2024-00042", "run1234")
	e.Round = 3
	e.Reason = "awaiting customer documents"
	sink.publish(e)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("wrote %d files, want 1", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("event file not JSON: %v", err)
	}
	if got.Type != EventPaused || got.ClaimID != "CLM-2024-00042" || got.Round != 3 {
		t.Errorf("event = %+v", got)
	}
	if got.ID == "" {
		t.Error("event has no id")
	}
	if got.Timestamp.IsZero() {
		t.Error("event has no timestamp")
	}
}

func TestTracerDisabled(t *testing.T) {
	tr := newTracer("", "CLM-2024-00042", "run1234")
	if tr != nil {
		t.Fatal("tracer enabled without a directory")
	}
	// Nil tracer must be safe to log to.
	tr.logf("round %d", 1)
}

func TestTracerAppends(t *testing.T) {
	dir := t.TempDir()
	tr := newTracer(dir, "CLM-2024-00042", "run1234")
	if tr == nil {
		t.Fatal("tracer not created")
	}
	tr.logf("round %d: %s patched %d field(s)", 1, "doc_collector", 2)

	data, err := os.ReadFile(filepath.Join(dir, "CLM-2024-00042_trace.txt"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"Claim ID: CLM-2024-00042", "Run ID: run1234", "doc_collector"} {
		if !strings.Contains(text, want) {
			t.Errorf("trace missing %q", want)
		}
	}
}
