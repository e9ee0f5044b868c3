package claims

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Event records an orchestration lifecycle moment for a claim.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	ClaimID    string            `json:"claim_id"`
	RunID      string            `json:"run_id,omitempty"`
	Round      int               `json:"round,omitempty"`
	Specialist string            `json:"specialist,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Data       map[string]string `json:"data,omitempty"`
}

// EventType identifies the kind of event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventRound     EventType = "round"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventCompleted EventType = "completed"
	EventStalled   EventType = "stalled"
	EventTimedOut  EventType = "timeout"
)

// eventSink receives events emitted by the manager.
type eventSink interface {
	publish(Event)
}

// fileEventSink writes each event as a JSON file into a directory,
// one file per event, so external watchers can tail the run.
type fileEventSink struct {
	dir string
}

func newFileEventSink(dir string) (*fileEventSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileEventSink{dir: dir}, nil
}

func (s *fileEventSink) publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	filename := fmt.Sprintf("%s-%s-%d.event", event.ClaimID, event.Type, time.Now().UnixNano())
	os.WriteFile(filepath.Join(s.dir, filename), data, 0o644)
}

// newEvent stamps an event with an id and timestamp.
func newEvent(typ EventType, claimID, runID string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      typ,
		ClaimID:   claimID,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	}
}
