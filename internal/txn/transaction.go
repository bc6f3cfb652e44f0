// Package txn tracks the (original, candidate) file pairs of a conversion
// batch and implements the commit/rollback passes that make replacing
// originals reversible.
package txn

import (
	"fmt"
	"path/filepath"
	"strings"
)

// StemSuffix is inserted before the .pdf extension to name a candidate
// replacement file.
const StemSuffix = "_OCR_"

// State is a transaction's position in its lifecycle. Failed, Committed,
// and RolledBack are terminal.
type State int

const (
	// StatePending means the document is queued for conversion.
	StatePending State = iota
	// StateConverted means a candidate file exists and awaits commit or rollback.
	StateConverted
	// StateFailed means conversion or commit failed; the original is untouched
	// unless Err says otherwise.
	StateFailed
	// StateCommitted means the candidate replaced the original.
	StateCommitted
	// StateRolledBack means the candidate was discarded.
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateConverted:
		return "Converted"
	case StateFailed:
		return "Failed"
	case StateCommitted:
		return "Committed"
	case StateRolledBack:
		return "RolledBack"
	default:
		return "Invalid"
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	switch s {
	case StateFailed, StateCommitted, StateRolledBack:
		return true
	}
	return false
}

// Transaction is one document's replacement record. It is owned by the
// Manager for the duration of a batch; the converter moves it
// Pending→Converted/Failed, the Manager moves it Converted→Committed or
// Converted→RolledBack.
type Transaction struct {
	Original  string
	Candidate string
	State     State
	// Err preserves the underlying diagnostic for Failed transactions.
	Err error
}

// New returns a Pending transaction for the original path, with the
// candidate path derived from the naming convention.
func New(original string) *Transaction {
	return &Transaction{
		Original:  original,
		Candidate: CandidatePath(original),
		State:     StatePending,
	}
}

// MarkConverted transitions Pending→Converted.
func (t *Transaction) MarkConverted() error {
	if t.State != StatePending {
		return fmt.Errorf("cannot mark %s transaction converted", t.State)
	}
	t.State = StateConverted
	return nil
}

// MarkFailed transitions a non-terminal transaction to Failed, preserving err.
func (t *Transaction) MarkFailed(err error) {
	if t.State.Terminal() {
		return
	}
	t.State = StateFailed
	t.Err = err
}

// CandidatePath returns the candidate replacement path for an original:
// the same directory and stem with StemSuffix inserted before the extension.
func CandidatePath(original string) string {
	ext := filepath.Ext(original)
	return strings.TrimSuffix(original, ext) + StemSuffix + ext
}

// OriginalPath returns the original path a candidate file replaces.
func OriginalPath(candidate string) string {
	ext := filepath.Ext(candidate)
	stem := strings.TrimSuffix(candidate, ext)
	return strings.TrimSuffix(stem, StemSuffix) + ext
}

// IsCandidate reports whether the path follows the candidate naming
// convention.
func IsCandidate(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasSuffix(strings.TrimSuffix(path, ext), StemSuffix)
}
