package claims

import (
	"bytes"
	"strings"
	"testing"
)

func TestHistoryJSONLRoundTrip(t *testing.T) {
	h := NewHistory()
	h.AddUser("My policy number is POL-1.")
	h.AddSystem("Missing documents:\n- police_report")
	h.Add(Turn{Role: RoleAssistant, Content: "Requesting the report.", Specialist: "doc_collector"})

	var buf bytes.Buffer
	if err := h.WriteJSONL(&buf); err != nil {
		t.Fatal(err)
	}
	// One line per turn even when content spans lines.
	if got := strings.Count(buf.String(), "\n"); got != 3 {
		t.Errorf("wrote %d lines, want 3", got)
	}

	restored, err := ReadHistoryJSONL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Len() != 3 {
		t.Fatalf("restored %d turns, want 3", restored.Len())
	}
	turns := restored.Turns()
	if turns[1].Content != "Missing documents:\n- police_report" {
		t.Errorf("multiline content mangled: %q", turns[1].Content)
	}
	if turns[2].Specialist != "doc_collector" {
		t.Errorf("specialist = %q", turns[2].Specialist)
	}
}

func TestReadHistoryJSONLSkipsBlankLines(t *testing.T) {
	in := `{"role":"user","content":"hello"}

{"role":"assistant","content":"hi","specialist":"triage"}
`
	h, err := ReadHistoryJSONL(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 2 {
		t.Errorf("len = %d, want 2", h.Len())
	}
}

func TestReadHistoryJSONLBadLine(t *testing.T) {
	if _, err := ReadHistoryJSONL(strings.NewReader("{not json}")); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestHistoryTurnsIsACopy(t *testing.T) {
	h := NewHistory()
	h.AddUser("original")

	turns := h.Turns()
	turns[0].Content = "mutated"

	if h.Turns()[0].Content != "original" {
		t.Error("Turns exposed internal storage")
	}
}
