package executor

import (
	"errors"
	"fmt"
)

// Kind classifies terminal executor failures.
//
// EntryRejected and EntryTimedOut are non-fatal: no position exists and the
// caller may re-signal later. ProtectionFailed is fatal for the trade
// attempt: an entry filled, protection could not be established, and the
// position was flattened (or flattening itself failed, in which case the
// wrapped error says so).
type Kind int

const (
	EntryRejected Kind = iota + 1
	EntryTimedOut
	ProtectionFailed
)

func (k Kind) String() string {
	switch k {
	case EntryRejected:
		return "entry_rejected"
	case EntryTimedOut:
		return "entry_timed_out"
	case ProtectionFailed:
		return "protection_failed"
	default:
		return "unknown"
	}
}

// ExecutionError is the typed failure returned by Execute.
type ExecutionError struct {
	Kind   Kind
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("execute %s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("execute %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// KindOf returns the executor failure kind in err's chain, or 0.
func KindOf(err error) Kind {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return 0
}

func IsEntryRejected(err error) bool    { return KindOf(err) == EntryRejected }
func IsEntryTimedOut(err error) bool    { return KindOf(err) == EntryTimedOut }
func IsProtectionFailed(err error) bool { return KindOf(err) == ProtectionFailed }
