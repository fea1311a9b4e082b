// Package failure defines the typed errors shared by the harness layers.
//
// Every error that can abort a test carries a Code so callers can decide
// how to report it without string matching:
//
//   - TRANSFER_FAILED: a fixture could not be moved into application storage
//   - NOT_FOUND: a document, element or directory does not exist
//   - TIMEOUT: an action or test exceeded its deadline
//   - ACTION_REJECTED: the application refused a scripted user action
//   - SNAPSHOT_MISMATCH: a capture differs from its baseline
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Code categorizes harness errors.
type Code string

const (
	// CodeTransfer indicates the contents endpoint was unreachable or refused an upload.
	CodeTransfer Code = "TRANSFER_FAILED"

	// CodeNotFound indicates a document, element or path is absent.
	CodeNotFound Code = "NOT_FOUND"

	// CodeTimeout indicates a deadline was exceeded.
	CodeTimeout Code = "TIMEOUT"

	// CodeRejected indicates the application rejected an action.
	CodeRejected Code = "ACTION_REJECTED"

	// CodeMismatch indicates a snapshot differs from its baseline.
	CodeMismatch Code = "SNAPSHOT_MISMATCH"
)

// Error is a harness error with a category and the operation that failed.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the failing operation, e.g. "upload" or "click".
	Op string

	// Path is the document path, selector or snapshot name involved.
	Path string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Code, e.Op, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error.
func New(code Code, op, path, message string) *Error {
	return &Error{Code: code, Op: op, Path: path, Message: message}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, op, path string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// Transfer creates a TRANSFER_FAILED error.
func Transfer(path string, err error) *Error {
	return Wrap(CodeTransfer, "upload", path, err)
}

// NotFound creates a NOT_FOUND error.
func NotFound(op, path string) *Error {
	return New(CodeNotFound, op, path, "not found")
}

// Rejected creates an ACTION_REJECTED error.
func Rejected(op, path string, err error) *Error {
	return Wrap(CodeRejected, op, path, err)
}

// Mismatch creates a SNAPSHOT_MISMATCH error.
func Mismatch(name, detail string) *Error {
	return New(CodeMismatch, "compare", name, detail)
}

// FromContext converts a context error into a TIMEOUT error.
// Errors that are not deadline or cancellation errors are returned unchanged.
func FromContext(op, path string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(CodeTimeout, op, path, err)
	}
	return err
}

// CodeOf returns the Code of the first Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsTransfer reports whether err is a transfer failure.
func IsTransfer(err error) bool { return CodeOf(err) == CodeTransfer }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsTimeout reports whether err is a timeout, including bare context deadline errors.
func IsTimeout(err error) bool {
	return CodeOf(err) == CodeTimeout || errors.Is(err, context.DeadlineExceeded)
}

// IsRejected reports whether err is a rejected action.
func IsRejected(err error) bool { return CodeOf(err) == CodeRejected }

// IsMismatch reports whether err is a snapshot mismatch.
func IsMismatch(err error) bool { return CodeOf(err) == CodeMismatch }
