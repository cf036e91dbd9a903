// Package pipeerr implements a flat error taxonomy. Errors are classified
// once, at the boundary where they originate (HTTP client, storage adapter,
// FSM guard); everything above that boundary switches on Kind rather than
// re-wrapping and re-inspecting the cause.
package pipeerr

import (
	"errors"
	"fmt"
)

// Kind is one of the eight taxonomy members.
type Kind string

const (
	NetTransient      Kind = "NET_TRANSIENT"
	UpstreamError     Kind = "UPSTREAM_ERROR"
	DecodingError     Kind = "DECODING_ERROR"
	BudgetExceeded    Kind = "BUDGET_EXCEEDED"
	Timeout           Kind = "TIMEOUT"
	StateConflict     Kind = "STATE_CONFLICT"
	ValidationError   Kind = "VALIDATION_ERROR"
	DependencyMissing Kind = "DEPENDENCY_MISSING"
)

// Retryable reports whether the retry policy for this kind calls for any
// retry at all (local or queue-level). UPSTREAM_ERROR, BUDGET_EXCEEDED, and
// VALIDATION_ERROR never retry.
func (k Kind) Retryable() bool {
	switch k {
	case NetTransient, DecodingError, Timeout, DependencyMissing:
		return true
	default:
		return false
	}
}

// Error wraps a causal error with its taxonomy classification. RetryAfter is
// populated when the source of the error (e.g. a 429) suggested a delay.
type Error struct {
	Kind      Kind
	Cause     error
	Message   string
	RetryAfter int // seconds; 0 means "use the caller's default backoff"
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a classified error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewValidationError is a convenience constructor for the common case of a
// data-model invariant violation.
func NewValidationError(message string) *Error {
	return &Error{Kind: ValidationError, Message: message}
}

// NewStateConflict reports an FSM/job-state action forbidden in the current
// state.
func NewStateConflict(message string) *Error {
	return &Error{Kind: StateConflict, Message: message}
}

// As extracts the classification from any error in the chain, defaulting to
// an unclassified VALIDATION_ERROR wrapper for errors that never passed
// through a boundary classifier, consistent with classifying once at the
// source rather than inspecting strings later.
func As(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: ValidationError, Message: "unclassified", Cause: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
