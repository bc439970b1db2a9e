// Package domainerrors defines coded errors shared by services and transports.
//
// Services return these so handlers can translate them into HTTP responses
// without string matching. Stores return pkg/sentinel errors instead; services
// wrap those into coded errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure. Codes are part of the public API
// surface: they appear verbatim in HTTP error envelopes and event payloads.
type Code string

const (
	// Authorization failures.
	CodeNotAnOwner Code = "not_an_owner"
	CodeNotSelf    Code = "not_self"

	// Validation failures.
	CodeZeroIdentity     Code = "zero_identity"
	CodeDuplicateOwner   Code = "duplicate_owner"
	CodeInvalidThreshold Code = "invalid_threshold"
	CodeBadRequest       Code = "bad_request"

	// Lookup failures.
	CodeTransactionNotFound Code = "transaction_not_found"

	// State failures.
	CodeAlreadyConfirmed             Code = "already_confirmed"
	CodeAlreadyExecuted              Code = "already_executed"
	CodeAlreadyCancelled             Code = "already_cancelled"
	CodeConfirmationNotFound         Code = "confirmation_not_found"
	CodeCancellationAlreadyRequested Code = "cancellation_already_requested"
	CodeCancellationNotFound         Code = "cancellation_request_not_found"
	CodeInsufficientConfirmations    Code = "insufficient_confirmations"

	// Execution failures.
	CodeExecutionFailed Code = "execution_failed"

	// Infrastructure.
	CodeUnauthorized Code = "unauthorized"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal"
)

// Error is a coded error. It carries the machine-readable Code alongside a
// human-readable message and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a code and message while preserving
// the cause chain for errors.Is / errors.As.
func Wrap(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var coded *Error
	for errors.As(err, &coded) {
		if coded.Code == code {
			return true
		}
		err = coded.cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability in tests.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries no code.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}
