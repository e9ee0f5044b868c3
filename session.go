package claims

import (
	"iter"
	"time"
)

// Session statuses.
const (
	SessionPaused      = "paused"
	SessionInterrupted = "interrupted"
	SessionArchived    = "archived"
)

// SessionMeta is the metadata record saved alongside a session.
type SessionMeta struct {
	Status           string    `json:"status"`
	SavedAt          time.Time `json:"saved_at"`
	MessageCount     int       `json:"message_count"`
	MissingDocuments []string  `json:"missing_documents"`
}

// Session is the persisted unit for one claim: the conversation history,
// the context snapshot, and the round ledger. It is created on first
// pause, overwritten on every later pause, and archived on a terminal
// outcome. Sessions are never deleted automatically.
type Session struct {
	ClaimID string        `json:"claim_id"`
	History *History      `json:"-"`
	Context *ClaimContext `json:"context"`
	Ledger  []RoundEntry  `json:"ledger"`
	Meta    SessionMeta   `json:"meta"`
}

// SessionInfo is one entry of a session listing.
type SessionInfo struct {
	ClaimID string    `json:"claim_id"`
	Status  string    `json:"status"`
	SavedAt time.Time `json:"saved_at"`
}

// SessionStore durably persists sessions keyed by claim ID. Saves for the
// same claim are last-writer-wins; saves for different claims must not
// interfere. An implementation must write the history, context, and
// metadata as one logical unit: a crash mid-save may lose the save but
// must never leave a Load able to observe a torn pair.
type SessionStore interface {
	// Save writes or overwrites the session for s.ClaimID atomically.
	Save(s *Session) error

	// Load returns the active session for the claim, or ErrSessionNotFound.
	Load(claimID string) (*Session, error)

	// List yields active sessions. The sequence is finite and can be
	// re-ranged from the start.
	List() iter.Seq2[SessionInfo, error]

	// Archive moves the session out of the active set. Archiving an
	// unknown or already-archived claim is a no-op.
	Archive(claimID string) error

	// LoadArchived retrieves an archived session, or ErrSessionNotFound.
	LoadArchived(claimID string) (*Session, error)

	// Close releases any underlying resources.
	Close() error
}
