package service

import (
	"context"
	"errors"
	"strings"

	"timeclock/internal/repository"
	"timeclock/internal/timetrack"
)

var (
	// ErrNotFound means the action needs a session the user does not have.
	ErrNotFound = errors.New("no session found for user")
	// ErrConflict means concurrent writes kept racing after all retries.
	ErrConflict = errors.New("concurrent clock action conflict")
	// ErrInvalidInput reports a malformed request such as an empty user ID.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError carries every rule that rejected an action.
type ValidationError struct {
	Violations []timetrack.Outcome
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Codes lists the codes of the violated rules.
func (e *ValidationError) Codes() []timetrack.Code {
	out := make([]timetrack.Code, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.Code)
	}
	return out
}

// ErrorKind maps an error to a stable label for logs and metrics.
func ErrorKind(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, repository.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
