// Package domainerrors defines the coded error type shared by every screening
// module. Codes are stable strings so callers (and the audit trail) can branch
// on the category of a failure without matching messages.
//
// Taxonomy:
//   - CodeInvalidInput: the query cannot be screened (empty, not text). Reject the request.
//   - CodeConfiguration: thresholds or weights are inconsistent. Fatal at initialization.
//   - CodeSnapshotUnavailable: no reference snapshot loaded. Fatal for screening.
//   - CodeScoringFailed: a single reference entry could not be scored. Isolated per entry.
//   - CodeAuditUnavailable: a compliance audit event could not be persisted.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an Error.
type Code string

const (
	CodeInvalidInput        Code = "invalid_input"
	CodeConfiguration       Code = "configuration"
	CodeSnapshotUnavailable Code = "snapshot_unavailable"
	CodeScoringFailed       Code = "scoring_failed"
	CodeAuditUnavailable    Code = "audit_unavailable"
	CodeConflict            Code = "conflict"
	CodeNotFound            Code = "not_found"
	CodeTimeout             Code = "timeout"
	CodeInternal            Code = "internal"
)

// Error is a coded domain error. Err, when set, is the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
// Wrapping a nil error returns nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost coded error in the chain,
// or CodeInternal when the chain carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any coded error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

func IsInvalidInput(err error) bool        { return HasCode(err, CodeInvalidInput) }
func IsConfiguration(err error) bool       { return HasCode(err, CodeConfiguration) }
func IsSnapshotUnavailable(err error) bool { return HasCode(err, CodeSnapshotUnavailable) }
