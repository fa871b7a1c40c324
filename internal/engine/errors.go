package engine

import (
	"errors"
	"fmt"
)

// ErrKind classifies engine failures for callers that choose recovery
// behavior by category rather than by message.
type ErrKind string

const (
	// KindSourceUnavailable means the source could not be attached at all
	// (camera missing, capture file unreadable). The engine never left the
	// idle state and may be started again.
	KindSourceUnavailable ErrKind = "source_unavailable"

	// KindSourceFatal means an attached source failed mid-session. The
	// session is abandoned and the engine is stopped.
	KindSourceFatal ErrKind = "source_fatal"

	// KindInvalidState means a lifecycle call was made in a state that
	// does not allow it.
	KindInvalidState ErrKind = "invalid_state"
)

// Error is the engine's error type. User cancellation is not an Error
// anywhere in this package: cancelling a session is a normal outcome.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrKind from err, or "" when err is not an engine
// Error.
func KindOf(err error) ErrKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
