package dispatcher

import (
	"errors"
	"fmt"

	"github.com/megasecretaria/megasecretaria/internal/calendar"
	"github.com/megasecretaria/megasecretaria/internal/resolver"
)

// reasonEndBeforeStart is the ValidationError reason for an inverted range.
const reasonEndBeforeStart = "must be after start"

// ValidationError reports a missing or invalid request parameter. An empty
// Reason means the parameter was missing.
type ValidationError struct {
	Action string
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Action, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: missing %s", e.Action, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NotFoundError and AmbiguousMatchError come from event resolution; they are
// re-exported so callers only need this package.
type (
	NotFoundError       = resolver.NotFoundError
	AmbiguousMatchError = resolver.AmbiguousMatchError
)

// CollaboratorError wraps a failure of the calendar or the state store.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// AuthError reports rejected calendar credentials.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: calendar authorization failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// classify turns a calendar error into the dispatcher taxonomy.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, calendar.ErrAuth):
		return &AuthError{Op: op, Err: err}
	default:
		return &CollaboratorError{Op: op, Err: err}
	}
}
