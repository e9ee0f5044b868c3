package claims

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FSStore persists sessions as one JSON record per claim under a base
// directory:
//
//	base/active/CLM-2024-00042.json
//	base/archive/CLM-2024-00042.json
//
// Saves are staged to a temp file in the same directory and renamed into
// place, so a concurrent Load never observes a half-written session.
type FSStore struct {
	base string
	mu   sync.Mutex
}

// NewFSStore creates the store, making the directories if needed.
func NewFSStore(base string) (*FSStore, error) {
	for _, dir := range []string{filepath.Join(base, "active"), filepath.Join(base, "archive")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "init", Err: err}
		}
	}
	return &FSStore{base: base}, nil
}

// sessionRecord is the on-disk form: history, context, ledger, and
// metadata written as one unit.
type sessionRecord struct {
	ClaimID string        `json:"claim_id"`
	Turns   []Turn        `json:"conversation"`
	Context *ClaimContext `json:"context"`
	Ledger  []RoundEntry  `json:"ledger"`
	Meta    SessionMeta   `json:"meta"`
}

func (st *FSStore) activePath(claimID string) string {
	return filepath.Join(st.base, "active", claimID+".json")
}

func (st *FSStore) archivePath(claimID string) string {
	return filepath.Join(st.base, "archive", claimID+".json")
}

// Save writes or overwrites the active session for s.ClaimID.
func (st *FSStore) Save(s *Session) error {
	if s.ClaimID == "" {
		return &StorageError{Op: "save", Err: errors.New("empty claim id")}
	}
	rec := sessionRecord{
		ClaimID: s.ClaimID,
		Turns:   s.History.Turns(),
		Context: s.Context,
		Ledger:  s.Ledger,
		Meta:    s.Meta,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &StorageError{Op: "save", ClaimID: s.ClaimID, Err: err}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if err := writeAtomic(st.activePath(s.ClaimID), s.ClaimID, data); err != nil {
		return &StorageError{Op: "save", ClaimID: s.ClaimID, Err: err}
	}
	return nil
}

// writeAtomic stages data to a temp file beside dst and renames it into
// place, so a reader never observes a half-written record.
func writeAtomic(dst, claimID string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), claimID+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Load returns the active session for the claim.
func (st *FSStore) Load(claimID string) (*Session, error) {
	return st.loadFrom(st.activePath(claimID), claimID)
}

// LoadArchived retrieves an archived session.
func (st *FSStore) LoadArchived(claimID string) (*Session, error) {
	return st.loadFrom(st.archivePath(claimID), claimID)
}

func (st *FSStore) loadFrom(path, claimID string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, &StorageError{Op: "load", ClaimID: claimID, Err: err}
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &StorageError{Op: "load", ClaimID: claimID, Err: err}
	}
	h := NewHistory()
	for _, t := range rec.Turns {
		h.Add(t)
	}
	return &Session{
		ClaimID: rec.ClaimID,
		History: h,
		Context: rec.Context,
		Ledger:  rec.Ledger,
		Meta:    rec.Meta,
	}, nil
}

// List yields active sessions sorted by claim ID. The sequence re-reads
// the directory each time it is ranged, so it is restartable.
func (st *FSStore) List() iter.Seq2[SessionInfo, error] {
	return func(yield func(SessionInfo, error) bool) {
		entries, err := os.ReadDir(filepath.Join(st.base, "active"))
		if err != nil {
			yield(SessionInfo{}, &StorageError{Op: "list", Err: err})
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if !e.IsDir() && strings.HasSuffix(name, ".json") && !strings.Contains(name, ".tmp-") {
				names = append(names, strings.TrimSuffix(name, ".json"))
			}
		}
		sort.Strings(names)
		for _, claimID := range names {
			s, err := st.Load(claimID)
			if err != nil {
				if errors.Is(err, ErrSessionNotFound) {
					continue // removed between readdir and load
				}
				if !yield(SessionInfo{ClaimID: claimID}, err) {
					return
				}
				continue
			}
			info := SessionInfo{ClaimID: claimID, Status: s.Meta.Status, SavedAt: s.Meta.SavedAt}
			if !yield(info, nil) {
				return
			}
		}
	}
}

// Archive moves the session out of the active set. A missing or already
// archived claim is a no-op. The record is rewritten with the archived
// status and staged directly to the archive path, so the active file is
// never truncated in place; a crash leaves either the old active record
// or the complete archived one.
func (st *FSStore) Archive(claimID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	src := st.activePath(claimID)
	s, err := st.loadFrom(src, claimID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.Meta.Status = SessionArchived
	rec := sessionRecord{ClaimID: s.ClaimID, Turns: s.History.Turns(), Context: s.Context, Ledger: s.Ledger, Meta: s.Meta}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &StorageError{Op: "archive", ClaimID: claimID, Err: err}
	}
	if err := writeAtomic(st.archivePath(claimID), claimID, data); err != nil {
		return &StorageError{Op: "archive", ClaimID: claimID, Err: err}
	}
	if err := os.Remove(src); err != nil {
		return &StorageError{Op: "archive", ClaimID: claimID, Err: err}
	}
	return nil
}

// Close is a no-op for the filesystem store.
func (st *FSStore) Close() error {
	return nil
}

var _ SessionStore = (*FSStore)(nil)

// String describes the store location.
func (st *FSStore) String() string {
	return fmt.Sprintf("fs-store(%s)", st.base)
}
