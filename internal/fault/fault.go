// Package fault defines the structured error kinds returned by the
// synchronization core. Every service operation reports failures as a
// kind-tagged error so the API layer can map them to stable error codes
// without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.
type Kind int

const (
	// KindValidation indicates missing or malformed input. No state changed.
	KindValidation Kind = iota

	// KindPrecondition indicates a role mismatch, duplicate vote, or wrong
	// state transition. No state changed.
	KindPrecondition

	// KindNotFound indicates an unknown identifier.
	KindNotFound

	// KindLedgerUnavailable indicates the reachability probe failed for an
	// operation that requires a ledger-assigned identifier.
	KindLedgerUnavailable

	// KindLedgerRejected indicates the ledger accepted the submission but
	// reverted or failed the transaction.
	KindLedgerRejected

	// KindConflict indicates the operation lost a resolution race and the
	// internal retry also conflicted.
	KindConflict

	// KindInternal indicates an unexpected storage or encoding failure.
	KindInternal
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition_failed"
	case KindNotFound:
		return "not_found"
	case KindLedgerUnavailable:
		return "ledger_unavailable"
	case KindLedgerRejected:
		return "ledger_rejected"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a kind-tagged error value.
type Error struct {
	Kind    Kind
	Message string
	Err     error // optional underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kind-tagged error with the given message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a kind-tagged error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error. Errors that are not kind-tagged
// report KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}
