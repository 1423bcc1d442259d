// Package errtax implements the error taxonomy described in spec §7:
// every component boundary classifies its failures into one of these
// kinds instead of returning bare errors, so callers can decide whether
// to retry, surface to a human, or fail loudly.
package errtax

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind string

const (
	// Transient covers network blips, temporary unavailability, timeouts.
	// Retried with backoff+jitter up to a configured attempt count.
	Transient Kind = "transient"

	// RateLimited means the caller hit a tracked limit window. Retried
	// only after the limit tracker's reported reset, or surfaced as a
	// typed failure once that wait exceeds the wrap-up budget.
	RateLimited Kind = "rate_limited"

	// FatalAgent means the agent runner rejected the task or returned an
	// invalid output shape. Never retried.
	FatalAgent Kind = "fatal_agent"

	// PersistenceUnavailable means a durable write failed. The caller
	// continues with in-memory state and a background flush retries;
	// past a bound the orchestrator pauses and alerts.
	PersistenceUnavailable Kind = "persistence_unavailable"

	// InvariantViolation means a precondition was false (claim held by
	// another owner, unmet dependency). The current operation must abort
	// cleanly; it is a programming or race condition, not a transient one.
	InvariantViolation Kind = "invariant_violation"

	// UserReviewRequired is not strictly an error: HIL fired, or a plan
	// tie needs a human pick. Progress blocks until the dashboard reports
	// a decision or a timeout elapses.
	UserReviewRequired Kind = "user_review_required"
)

// Error is the typed failure every classified boundary returns.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "memory.ClaimTask"
	Cause   error
	Details string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Details)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retriable reports whether the caller should retry this failure at all,
// ignoring how many attempts remain.
func (e *Error) Retriable() bool {
	switch e.Kind {
	case Transient, RateLimited:
		return true
	default:
		return false
	}
}

// New builds a classified error.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Newf builds a classified error with a formatted detail message and no
// wrapped cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Details: fmt.Sprintf(format, args...)}
}

// As reports whether err (or something it wraps) is an *Error of kind k.
func As(err error, k Kind) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == k
}
