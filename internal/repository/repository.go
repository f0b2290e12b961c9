// Package repository defines the storage port for clock events and work
// sessions together with an in-memory implementation.
package repository

import (
	"context"
	"errors"

	"timeclock/internal/models"
)

var (
	// ErrNotFound is returned when an update targets a missing row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	// or an optimistic version check.
	ErrConflict = errors.New("concurrent modification")
)

// SessionFilter narrows a paged session listing. Zero dates are unbounded.
type SessionFilter struct {
	From   models.Date
	To     models.Date
	Limit  int
	Offset int
}

// ClockRepository stores time events and work sessions.
//
// Finders return a nil pointer and no error when nothing matches.
// Implementations must enforce one session per (user, date) and at most one
// open session per user, reporting violations as ErrConflict.
type ClockRepository interface {
	CreateEvent(ctx context.Context, event models.TimeEvent) (models.TimeEvent, error)
	FindLastEventByUserAndKind(ctx context.Context, userID string, kind models.EventKind) (*models.TimeEvent, error)
	ListEventsByUser(ctx context.Context, userID string, limit int) ([]models.TimeEvent, error)

	FindSessionByUserAndDate(ctx context.Context, userID string, date models.Date) (*models.WorkSession, error)
	FindOpenSession(ctx context.Context, userID string) (*models.WorkSession, error)
	CreateSession(ctx context.Context, session models.WorkSession) (models.WorkSession, error)
	// UpdateSession persists session when its Version matches the stored
	// one and returns it with the version incremented.
	UpdateSession(ctx context.Context, session models.WorkSession) (models.WorkSession, error)
	FindSessionsByUserAndDateRange(ctx context.Context, userID string, from, to models.Date) ([]models.WorkSession, error)
	// ListSessionsByUser returns a page of sessions, newest date first, and
	// the total number of sessions matching the filter.
	ListSessionsByUser(ctx context.Context, userID string, filter SessionFilter) ([]models.WorkSession, int, error)

	// WithTx runs fn against a transactional view of the repository. Writes
	// made through the view are discarded when fn returns an error.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx ClockRepository) error) error
}

// InRange reports whether d falls inside the inclusive filter bounds.
func (f SessionFilter) InRange(d models.Date) bool {
	if !f.From.IsZero() && d.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.After(f.To) {
		return false
	}
	return true
}
