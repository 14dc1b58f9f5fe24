// Package errs defines the domain error taxonomy for the research agent
// (spec.md §7): a closed set of classes that node and driver code wrap
// errors into, plus a Classify helper that feeds graph.RetryPolicy's
// Retryable predicate. It sits on top of graph.NodeError/EngineError
// rather than replacing them — a *Error here is typically the Cause of
// a graph.NodeError once the engine attaches the failing node's ID.
package errs

import "errors"

// Class is the closed set of error classes (spec.md §7).
type Class string

const (
	// ClassTransientDriver covers retryable failures from an external
	// dependency: network timeouts, 429/503/504 from the LLM, search, or
	// market APIs, SQLite SQLITE_BUSY.
	ClassTransientDriver Class = "transient_driver"
	// ClassPermanentDriver covers non-retryable driver failures: 4xx
	// (other than 429) from an API, malformed responses the driver
	// cannot parse, auth failures.
	ClassPermanentDriver Class = "permanent_driver"
	// ClassStatePrecondition covers a node finding state it did not
	// expect (e.g. a missing topic) — a bug in an upstream node, not a
	// transient condition.
	ClassStatePrecondition Class = "state_precondition"
	// ClassCancelled covers context cancellation/deadline, surfaced
	// distinctly from other errors so callers don't retry or alert on it.
	ClassCancelled Class = "cancelled"
	// ClassInternalAssertion covers invariant violations this package
	// should never see in practice (e.g. a reducer merge producing a
	// negative Iterations) — always a bug, never retried.
	ClassInternalAssertion Class = "internal_assertion"
)

// Error is the concrete error type every constructor below returns.
type Error struct {
	Class   Class
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Class) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Class) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// TransientDriver wraps a retryable driver-level failure.
func TransientDriver(msg string, cause error) error {
	return &Error{Class: ClassTransientDriver, Message: msg, Cause: cause}
}

// PermanentDriver wraps a non-retryable driver-level failure.
func PermanentDriver(msg string, cause error) error {
	return &Error{Class: ClassPermanentDriver, Message: msg, Cause: cause}
}

// StatePrecondition reports a node finding state it cannot proceed with.
func StatePrecondition(msg string) error {
	return &Error{Class: ClassStatePrecondition, Message: msg}
}

// Cancelled wraps a context cancellation/deadline error.
func Cancelled(cause error) error {
	return &Error{Class: ClassCancelled, Message: "context cancelled", Cause: cause}
}

// InternalAssertion reports an invariant violation that should never happen.
func InternalAssertion(msg string) error {
	return &Error{Class: ClassInternalAssertion, Message: msg}
}

// Classify returns the Class of err, walking its Unwrap chain. An error
// with no *Error in its chain classifies as ClassPermanentDriver — the
// conservative default, since an un-annotated error is assumed not safe
// to retry blindly.
func Classify(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassPermanentDriver
}

// Retryable adapts Classify into a graph.RetryPolicy.Retryable predicate:
// only ClassTransientDriver errors are retried.
func Retryable(err error) bool {
	return Classify(err) == ClassTransientDriver
}
