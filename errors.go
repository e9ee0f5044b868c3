package claims

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the orchestration core.
var (
	// ErrSessionNotFound is returned by Resume and SessionStore.Load when no
	// active session exists for the claim. Client-correctable.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRunInProgress is returned when Process or Resume is called for a
	// claim that already has a running loop in this manager.
	ErrRunInProgress = errors.New("claim run already in progress")
)

// ValidationError reports a context patch or payload field that violates
// the schema. The offending round is discarded; the loop continues with
// the unmodified context.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// StorageError wraps a SessionStore read/write failure. It is always
// surfaced to the caller: losing a session is losing the claim's state.
type StorageError struct {
	Op      string // "save", "load", "list", "archive"
	ClaimID string
	Err     error
}

func (e *StorageError) Error() string {
	if e.ClaimID == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.ClaimID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
