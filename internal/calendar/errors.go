package calendar

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	// ErrNotFound is returned when the referenced event does not exist or was deleted.
	ErrNotFound = errors.New("calendar event not found")

	// ErrAuth is returned when Google rejects the stored credentials.
	ErrAuth = errors.New("calendar authorization failed")
)

// Error describes a failed calendar operation.
type Error struct {
	Op   string
	Kind error // ErrNotFound, ErrAuth or nil
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("calendar %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the classification and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound, http.StatusGone:
			return ErrNotFound
		case http.StatusUnauthorized:
			return ErrAuth
		}
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return ErrAuth
	}
	return nil
}
