package claims

import "time"

// RoundEntry records one manager round: which specialist ran and the
// context fingerprint after its patch was applied.
type RoundEntry struct {
	Specialist  string    `json:"specialist"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// Ledger is the append-only, ordered log of round entries for a claim.
// It is never mutated in place; entries are only appended during a run and
// the whole ledger is dropped when a session is archived. The invariant
// len(ledger) == ClaimContext.RoundCount holds at every round boundary.
type Ledger struct {
	entries []RoundEntry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records a round.
func (l *Ledger) Append(e RoundEntry) {
	l.entries = append(l.entries, e)
}

// Len returns the number of recorded rounds.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of all entries in order.
func (l *Ledger) Entries() []RoundEntry {
	return append([]RoundEntry(nil), l.entries...)
}

// Last returns the most recent entry, or false when the ledger is empty.
func (l *Ledger) Last() (RoundEntry, bool) {
	if len(l.entries) == 0 {
		return RoundEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// IsStalled reports whether the last threshold entries were produced by a
// single specialist with no observable context change. A specialist called
// repeatedly with a changing fingerprint is making incremental progress and
// never counts as a stall. When an entry precedes the repeated run, its
// fingerprint must match too: if the first call of the run changed the
// context, the run contains threshold-1 no-ops, not threshold.
func (l *Ledger) IsStalled(threshold int) bool {
	n := len(l.entries)
	if threshold <= 0 || n < threshold {
		return false
	}
	run := l.entries[n-threshold:]
	specialist := run[0].Specialist
	fp := run[0].Fingerprint
	for _, e := range run[1:] {
		if e.Specialist != specialist || e.Fingerprint != fp {
			return false
		}
	}
	if n > threshold && l.entries[n-threshold-1].Fingerprint != fp {
		return false
	}
	return true
}

// StalledSpecialist returns the specialist responsible for the current
// stall, or "" when not stalled.
func (l *Ledger) StalledSpecialist(threshold int) string {
	if !l.IsStalled(threshold) {
		return ""
	}
	return l.entries[len(l.entries)-1].Specialist
}
