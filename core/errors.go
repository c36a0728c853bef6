package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the orchestration core can produce.
// Kinds are stable wire identifiers: they appear verbatim in `error`
// events and in HTTP error bodies, so renaming one is a breaking change.
type ErrorKind string

const (
	// KindValidation marks a malformed request. No side effects occurred.
	KindValidation ErrorKind = "validation_error"
	// KindSessionNotFound marks a lookup for an id the registry does not hold.
	KindSessionNotFound ErrorKind = "session_not_found"
	// KindSessionExpired marks access to a session past its idle timeout.
	KindSessionExpired ErrorKind = "session_expired"
	// KindCapacity marks a create attempt against a full registry with no
	// evictable session.
	KindCapacity ErrorKind = "capacity_exceeded"
	// KindConcurrentTurn marks a second turn submitted while the session
	// is already running one.
	KindConcurrentTurn ErrorKind = "concurrent_turn"
	// KindCapabilityViolation marks an agent requesting a tool outside its
	// declared capability set. Fatal for the turn; indicates a
	// misconfigured graph or a misbehaving model.
	KindCapabilityViolation ErrorKind = "capability_violation"
	// KindHandoffViolation marks a handoff along an undeclared edge.
	// Fatal for the turn; the target is never silently substituted.
	KindHandoffViolation ErrorKind = "handoff_violation"
	// KindToolInvocation marks an external tool failure after the one
	// permitted fallback attempt. The session is left idle for retry.
	KindToolInvocation ErrorKind = "tool_invocation_failed"
	// KindIterationLimit marks a turn that exceeded the configured hop
	// bound. Fatal for the turn, not the process.
	KindIterationLimit ErrorKind = "iteration_limit_exceeded"
	// KindConfiguration marks an invalid graph, tool set, or config file.
	// Configuration errors abort startup entirely.
	KindConfiguration ErrorKind = "configuration_error"
	// KindInternal is the catch-all for failures outside the taxonomy
	// (model transport faults, panics). Surfaced like any other terminal
	// turn error.
	KindInternal ErrorKind = "internal_error"
)

// Error carries an ErrorKind alongside a human-readable message and an
// optional wrapped cause. All errors crossing component boundaries are
// *Error values so callers can branch on kind without string matching.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error of the given kind wrapping an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind carried by err, unwrapping as needed.
// Errors outside the taxonomy report KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns err's human-readable text without the kind prefix,
// for wire payloads that carry the kind in a field of its own.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return err.Error()
}
