package claims

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore using modernc.org/sqlite (pure Go).
// Each save runs in one transaction, so history, context, and metadata are
// committed as a single unit and concurrent loads for other claims are
// unaffected (WAL mode).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// creates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &StorageError{Op: "init", Err: err}
	}
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		claim_id     TEXT PRIMARY KEY,
		status       TEXT NOT NULL DEFAULT '',
		saved_at     DATETIME NOT NULL,
		msg_count    INTEGER NOT NULL DEFAULT 0,
		missing_docs TEXT NOT NULL DEFAULT '[]',
		context      TEXT NOT NULL,
		history      TEXT NOT NULL DEFAULT '',
		ledger       TEXT NOT NULL DEFAULT '[]',
		archived     INTEGER NOT NULL DEFAULT 0,
		archived_at  DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_archived ON sessions(archived);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &StorageError{Op: "init", Err: err}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the session row in one transaction.
func (s *SQLiteStore) Save(sess *Session) error {
	if sess.ClaimID == "" {
		return &StorageError{Op: "save", Err: errors.New("empty claim id")}
	}
	ctxJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return &StorageError{Op: "save", ClaimID: sess.ClaimID, Err: err}
	}
	ledgerJSON, err := json.Marshal(sess.Ledger)
	if err != nil {
		return &StorageError{Op: "save", ClaimID: sess.ClaimID, Err: err}
	}
	missingJSON, err := json.Marshal(sess.Meta.MissingDocuments)
	if err != nil {
		return &StorageError{Op: "save", ClaimID: sess.ClaimID, Err: err}
	}
	var hist bytes.Buffer
	if err := sess.History.WriteJSONL(&hist); err != nil {
		return &StorageError{Op: "save", ClaimID: sess.ClaimID, Err: err}
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (claim_id, status, saved_at, msg_count, missing_docs, context, history, ledger, archived)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(claim_id) DO UPDATE SET
		   status = excluded.status,
		   saved_at = excluded.saved_at,
		   msg_count = excluded.msg_count,
		   missing_docs = excluded.missing_docs,
		   context = excluded.context,
		   history = excluded.history,
		   ledger = excluded.ledger,
		   archived = 0,
		   archived_at = NULL`,
		sess.ClaimID, sess.Meta.Status, sess.Meta.SavedAt.UTC(), sess.Meta.MessageCount,
		string(missingJSON), string(ctxJSON), hist.String(), string(ledgerJSON),
	)
	if err != nil {
		return &StorageError{Op: "save", ClaimID: sess.ClaimID, Err: err}
	}
	return nil
}

// Load returns the active session for the claim.
func (s *SQLiteStore) Load(claimID string) (*Session, error) {
	return s.load(claimID, false)
}

// LoadArchived retrieves an archived session.
func (s *SQLiteStore) LoadArchived(claimID string) (*Session, error) {
	return s.load(claimID, true)
}

func (s *SQLiteStore) load(claimID string, archived bool) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT status, saved_at, msg_count, missing_docs, context, history, ledger
		 FROM sessions WHERE claim_id = ? AND archived = ?`,
		claimID, boolInt(archived),
	)

	var (
		status, missingJSON, ctxJSON, histText, ledgerJSON string
		savedAt                                            time.Time
		msgCount                                           int
	)
	err := row.Scan(&status, &savedAt, &msgCount, &missingJSON, &ctxJSON, &histText, &ledgerJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load", ClaimID: claimID, Err: err}
	}

	var cc ClaimContext
	if err := json.Unmarshal([]byte(ctxJSON), &cc); err != nil {
		return nil, &StorageError{Op: "load", ClaimID: claimID, Err: err}
	}
	var ledger []RoundEntry
	if err := json.Unmarshal([]byte(ledgerJSON), &ledger); err != nil {
		return nil, &StorageError{Op: "load", ClaimID: claimID, Err: err}
	}
	var missing []string
	if err := json.Unmarshal([]byte(missingJSON), &missing); err != nil {
		return nil, &StorageError{Op: "load", ClaimID: claimID, Err: err}
	}
	hist, err := ReadHistoryJSONL(strings.NewReader(histText))
	if err != nil {
		return nil, &StorageError{Op: "load", ClaimID: claimID, Err: err}
	}

	return &Session{
		ClaimID: claimID,
		History: hist,
		Context: &cc,
		Ledger:  ledger,
		Meta: SessionMeta{
			Status:           status,
			SavedAt:          savedAt,
			MessageCount:     msgCount,
			MissingDocuments: missing,
		},
	}, nil
}

// List yields active sessions ordered by claim ID. Each range runs a fresh
// query, so the sequence is restartable.
func (s *SQLiteStore) List() iter.Seq2[SessionInfo, error] {
	return func(yield func(SessionInfo, error) bool) {
		rows, err := s.db.Query(
			`SELECT claim_id, status, saved_at FROM sessions
			 WHERE archived = 0 ORDER BY claim_id`,
		)
		if err != nil {
			yield(SessionInfo{}, &StorageError{Op: "list", Err: err})
			return
		}
		defer rows.Close()

		for rows.Next() {
			var info SessionInfo
			if err := rows.Scan(&info.ClaimID, &info.Status, &info.SavedAt); err != nil {
				yield(SessionInfo{}, &StorageError{Op: "list", Err: err})
				return
			}
			if !yield(info, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(SessionInfo{}, &StorageError{Op: "list", Err: err})
		}
	}
}

// Archive flags the session as archived. Unknown or already-archived
// claims are a no-op.
func (s *SQLiteStore) Archive(claimID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET archived = 1, archived_at = ?, status = ?
		 WHERE claim_id = ? AND archived = 0`,
		time.Now().UTC(), SessionArchived, claimID,
	)
	if err != nil {
		return &StorageError{Op: "archive", ClaimID: claimID, Err: err}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ SessionStore = (*SQLiteStore)(nil)
