package claims

import (
	"bufio"
	"encoding/json"
	"io"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry in a claim's conversation history.
type Turn struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Specialist string `json:"specialist,omitempty"`
}

// History is the ordered conversation record for a claim. It is not safe
// for concurrent use; the manager owns it for the duration of a run.
type History struct {
	turns []Turn
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Add appends a turn.
func (h *History) Add(t Turn) {
	h.turns = append(h.turns, t)
}

// AddSystem appends a system note.
func (h *History) AddSystem(content string) {
	h.Add(Turn{Role: RoleSystem, Content: content})
}

// AddUser appends a user turn.
func (h *History) AddUser(content string) {
	h.Add(Turn{Role: RoleUser, Content: content})
}

// Turns returns a copy of all turns in order.
func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

// Len returns the number of turns.
func (h *History) Len() int {
	return len(h.turns)
}

// WriteJSONL writes the history one JSON message per line.
func (h *History) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, t := range h.turns {
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	return nil
}

// ReadHistoryJSONL restores a history from its JSONL form. Blank lines are
// skipped.
func ReadHistoryJSONL(r io.Reader) (*History, error) {
	h := NewHistory()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t Turn
		if err := json.Unmarshal(line, &t); err != nil {
			return nil, err
		}
		h.Add(t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return h, nil
}
