package claims

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleSession(claimID string) *Session {
	cc, _ := NewClaimContext(claimID)
	cc.State = StateGathering
	cc.MissingDocuments = []string{"police_report"}
	cc.RoundCount = 2

	h := NewHistory()
	h.AddUser("My policy number is POL-334455.")
	h.Add(Turn{Role: RoleAssistant, Content: "Requesting the police report.", Specialist: "doc_collector"})

	return &Session{
		ClaimID: claimID,
		History: h,
		Context: cc,
		Ledger: []RoundEntry{
			entry("doc_collector", "fp1"),
			entry("doc_collector", "fp2"),
		},
		Meta: SessionMeta{
			Status:           SessionPaused,
			SavedAt:          time.Now().UTC(),
			MessageCount:     2,
			MissingDocuments: []string{"police_report"},
		},
	}
}

// exerciseStore runs the contract checks shared by every SessionStore.
func exerciseStore(t *testing.T, store SessionStore) {
	t.Helper()

	const claimID = "CLM-2024-00042"

	if _, err := store.Load(claimID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load before save = %v, want ErrSessionNotFound", err)
	}

	if err := store.Save(sampleSession(claimID)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(claimID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ClaimID != claimID {
		t.Errorf("claim id = %q", got.ClaimID)
	}
	if got.Context.State != StateGathering || got.Context.RoundCount != 2 {
		t.Errorf("context not restored: %+v", got.Context)
	}
	if got.History.Len() != 2 {
		t.Errorf("history length = %d, want 2", got.History.Len())
	}
	if turns := got.History.Turns(); turns[1].Specialist != "doc_collector" {
		t.Errorf("turn specialist = %q", turns[1].Specialist)
	}
	if len(got.Ledger) != 2 || got.Ledger[1].Fingerprint != "fp2" {
		t.Errorf("ledger not restored: %+v", got.Ledger)
	}
	if got.Meta.Status != SessionPaused {
		t.Errorf("status = %q", got.Meta.Status)
	}

	// Saving again overwrites, last writer wins.
	updated := sampleSession(claimID)
	updated.Context.RoundCount = 5
	updated.Ledger = append(updated.Ledger, entry("fraud_analyst", "fp3"))
	if err := store.Save(updated); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, err = store.Load(claimID)
	if err != nil {
		t.Fatalf("Load after re-save: %v", err)
	}
	if got.Context.RoundCount != 5 || len(got.Ledger) != 3 {
		t.Error("second save did not overwrite the first")
	}

	// A second claim does not interfere.
	if err := store.Save(sampleSession("CLM-2024-00099")); err != nil {
		t.Fatalf("save second claim: %v", err)
	}

	var listed []string
	for info, err := range store.List() {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		listed = append(listed, info.ClaimID)
	}
	if strings.Join(listed, ",") != "CLM-2024-00042,CLM-2024-00099" {
		t.Errorf("List = %v", listed)
	}

	// The sequence is restartable.
	count := 0
	for range store.List() {
		count++
	}
	if count != 2 {
		t.Errorf("second List pass saw %d sessions, want 2", count)
	}

	// Archive moves the session out of the active set and is idempotent.
	if err := store.Archive(claimID); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if err := store.Archive(claimID); err != nil {
		t.Fatalf("second Archive: %v", err)
	}
	if err := store.Archive("CLM-2024-77777"); err != nil {
		t.Fatalf("Archive of unknown claim: %v", err)
	}

	if _, err := store.Load(claimID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load after archive = %v, want ErrSessionNotFound", err)
	}
	arch, err := store.LoadArchived(claimID)
	if err != nil {
		t.Fatalf("LoadArchived: %v", err)
	}
	if arch.Meta.Status != SessionArchived {
		t.Errorf("archived status = %q, want %q", arch.Meta.Status, SessionArchived)
	}
	if _, err := store.LoadArchived("CLM-2024-77777"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("LoadArchived of unknown claim = %v, want ErrSessionNotFound", err)
	}
}

func TestFSStore(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestFSStoreSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Save(sampleSession("CLM-2024-00042")); err != nil {
		t.Fatal(err)
	}
	// A crashed save leaves a temp file behind; List must not surface it.
	stray := filepath.Join(dir, "active", "CLM-2024-00001.tmp-123.json")
	if err := os.WriteFile(stray, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	count := 0
	for info, err := range store.List() {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if info.ClaimID != "CLM-2024-00042" {
			t.Errorf("unexpected session %q", info.ClaimID)
		}
		count++
	}
	if count != 1 {
		t.Errorf("List saw %d sessions, want 1", count)
	}
}

func TestFSStoreArchiveStagesRewriteAtomically(t *testing.T) {
	// Archive rewrites the status into the archived record without ever
	// truncating the active file in place: the archive copy appears via
	// rename and only then is the active file removed.
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Save(sampleSession("CLM-2024-00042")); err != nil {
		t.Fatal(err)
	}
	if err := store.Archive("CLM-2024-00042"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "active", "CLM-2024-00042.json")); !os.IsNotExist(err) {
		t.Errorf("active record still present after archive: %v", err)
	}
	arch, err := store.LoadArchived("CLM-2024-00042")
	if err != nil {
		t.Fatalf("LoadArchived: %v", err)
	}
	if arch.Meta.Status != SessionArchived {
		t.Errorf("archived status = %q, want %q", arch.Meta.Status, SessionArchived)
	}

	for _, sub := range []string{"active", "archive"} {
		entries, err := os.ReadDir(filepath.Join(dir, sub))
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.Contains(e.Name(), ".tmp-") {
				t.Errorf("temp file left behind in %s: %s", sub, e.Name())
			}
		}
	}
}

func TestFSStoreArchiveSurfacesCorruptRecord(t *testing.T) {
	// A torn or corrupt active record must fail the archive loudly, not
	// archive garbage.
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	bad := filepath.Join(dir, "active", "CLM-2024-00077.json")
	if err := os.WriteFile(bad, []byte("{torn"), 0o644); err != nil {
		t.Fatal(err)
	}

	err = store.Archive("CLM-2024-00077")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Archive on corrupt record = %v, want StorageError", err)
	}
	if _, err := os.Stat(bad); err != nil {
		t.Errorf("corrupt active record was removed: %v", err)
	}
}

func TestFSStoreSaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Save(sampleSession("CLM-2024-00042")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "active"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
