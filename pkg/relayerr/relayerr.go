// Package relayerr defines the error taxonomy shared by the store adapter,
// the pattern engines, and the HTTP layer.
//
// Engines translate raw store and script failures into one of the kinds
// below; the API layer maps kinds onto HTTP statuses in exactly one place.
package relayerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and surfacing decisions.
type Kind string

const (
	// KindConnectivity — store unreachable. Engine worker loops retry it with
	// capped exponential back-off and never give up; a store call made for an
	// HTTP request is not retried and surfaces it on the first failure.
	KindConnectivity Kind = "connectivity"

	// KindProtocol — unexpected store response shape. Never retried.
	KindProtocol Kind = "protocol"

	// KindNotFound — missing group, key, or entry.
	KindNotFound Kind = "not_found"

	// KindValidation — bad caller input.
	KindValidation Kind = "validation"

	// KindScript — a server-side script reported a failure.
	KindScript Kind = "script"

	// KindTimeout — a store call exceeded its per-call deadline.
	KindTimeout Kind = "timeout"

	// KindInternal — invariant violation or unclassified failure.
	KindInternal Kind = "internal"
)

// Error is the uniform error value surfaced across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error wrapping a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

// IsRetryable reports whether engines should retry the failed operation.
// Only connectivity failures are retried; everything else is surfaced.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConnectivity
}
