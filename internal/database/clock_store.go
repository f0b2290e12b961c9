package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"timeclock/internal/models"
	"timeclock/internal/repository"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ClockStore implements repository.ClockRepository on SQLite.
type ClockStore struct {
	db   *DB
	q    querier
	inTx bool
}

var _ repository.ClockRepository = (*ClockStore)(nil)

// NewClockStore returns a store bound to db.
func NewClockStore(db *DB) *ClockStore {
	return &ClockStore{db: db, q: db.DB}
}

const eventColumns = `id, user_id, kind, occurred_at, calendar_date, timezone, created_at`

const sessionColumns = `id, user_id, session_date, clock_in_time, clock_out_time,
	lunch_start_time, lunch_end_time, status, total_work_minutes, total_lunch_minutes,
	total_work_hours, carried_work_minutes, carried_lunch_minutes, version, created_at, updated_at`

// translateError maps constraint and lock errors to repository sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintUnique,
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
			se.Code == sqlite3.ErrBusy,
			se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", repository.ErrConflict, err)
		}
	}
	return err
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.TimeEvent, error) {
	var e models.TimeEvent
	var kind string
	err := row.Scan(&e.ID, &e.UserID, &kind, &e.Timestamp, &e.CalendarDate, &e.Timezone, &e.CreatedAt)
	e.Kind = models.EventKind(kind)
	return e, err
}

func scanSession(row rowScanner) (models.WorkSession, error) {
	var s models.WorkSession
	var in, out, lunchStart, lunchEnd sql.NullTime
	var status string
	err := row.Scan(&s.ID, &s.UserID, &s.Date, &in, &out, &lunchStart, &lunchEnd, &status,
		&s.TotalWorkMinutes, &s.TotalLunchMinutes, &s.TotalWorkHours,
		&s.CarriedWorkMinutes, &s.CarriedLunchMinutes, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.ClockInTime = timePtr(in)
	s.ClockOutTime = timePtr(out)
	s.LunchStartTime = timePtr(lunchStart)
	s.LunchEndTime = timePtr(lunchEnd)
	s.Status = models.SessionStatus(status)
	return s, nil
}

func (s *ClockStore) CreateEvent(ctx context.Context, e models.TimeEvent) (models.TimeEvent, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = utc(e.CreatedAt)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO time_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.Kind), utc(e.Timestamp), e.CalendarDate, e.Timezone, e.CreatedAt)
	if err != nil {
		return models.TimeEvent{}, fmt.Errorf("insert time event: %w", translateError(err))
	}
	return e, nil
}

func (s *ClockStore) FindLastEventByUserAndKind(ctx context.Context, userID string, kind models.EventKind) (*models.TimeEvent, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM time_events
		WHERE user_id = ? AND kind = ?
		ORDER BY occurred_at DESC
		LIMIT 1`, userID, string(kind))
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find last %s event: %w", kind, err)
	}
	return &e, nil
}

func (s *ClockStore) ListEventsByUser(ctx context.Context, userID string, limit int) ([]models.TimeEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM time_events WHERE user_id = ? ORDER BY occurred_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.TimeEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *ClockStore) findSession(ctx context.Context, where string, args ...any) (*models.WorkSession, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM work_sessions WHERE `+where+` LIMIT 1`, args...)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *ClockStore) FindSessionByUserAndDate(ctx context.Context, userID string, date models.Date) (*models.WorkSession, error) {
	session, err := s.findSession(ctx, `user_id = ? AND session_date = ?`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("find session %s/%s: %w", userID, date, err)
	}
	return session, nil
}

func (s *ClockStore) FindOpenSession(ctx context.Context, userID string) (*models.WorkSession, error) {
	session, err := s.findSession(ctx, `user_id = ? AND status <> 'completed'`, userID)
	if err != nil {
		return nil, fmt.Errorf("find open session %s: %w", userID, err)
	}
	return session, nil
}

func (s *ClockStore) CreateSession(ctx context.Context, session models.WorkSession) (models.WorkSession, error) {
	now := time.Now().UTC()
	session.Version = 1
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO work_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Date,
		nullTime(session.ClockInTime), nullTime(session.ClockOutTime),
		nullTime(session.LunchStartTime), nullTime(session.LunchEndTime),
		string(session.Status), session.TotalWorkMinutes, session.TotalLunchMinutes, session.TotalWorkHours,
		session.CarriedWorkMinutes, session.CarriedLunchMinutes, session.Version, now, now)
	if err != nil {
		return models.WorkSession{}, fmt.Errorf("insert work session: %w", translateError(err))
	}
	return session, nil
}

func (s *ClockStore) UpdateSession(ctx context.Context, session models.WorkSession) (models.WorkSession, error) {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		UPDATE work_sessions SET
			clock_in_time = ?, clock_out_time = ?, lunch_start_time = ?, lunch_end_time = ?,
			status = ?, total_work_minutes = ?, total_lunch_minutes = ?, total_work_hours = ?,
			carried_work_minutes = ?, carried_lunch_minutes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		nullTime(session.ClockInTime), nullTime(session.ClockOutTime),
		nullTime(session.LunchStartTime), nullTime(session.LunchEndTime),
		string(session.Status), session.TotalWorkMinutes, session.TotalLunchMinutes, session.TotalWorkHours,
		session.CarriedWorkMinutes, session.CarriedLunchMinutes, now,
		session.ID, session.Version)
	if err != nil {
		return models.WorkSession{}, fmt.Errorf("update work session: %w", translateError(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return models.WorkSession{}, fmt.Errorf("update work session: %w", err)
	}
	if affected == 0 {
		var exists int
		err := s.q.QueryRowContext(ctx, `SELECT 1 FROM work_sessions WHERE id = ?`, session.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return models.WorkSession{}, fmt.Errorf("update work session %s: %w", session.ID, repository.ErrNotFound)
		}
		return models.WorkSession{}, fmt.Errorf("update work session %s: version %d: %w", session.ID, session.Version, repository.ErrConflict)
	}

	session.Version++
	session.UpdatedAt = now
	return session, nil
}

func (s *ClockStore) querySessions(ctx context.Context, query string, args ...any) ([]models.WorkSession, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.WorkSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *ClockStore) FindSessionsByUserAndDateRange(ctx context.Context, userID string, from, to models.Date) ([]models.WorkSession, error) {
	sessions, err := s.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM work_sessions
		WHERE user_id = ? AND session_date BETWEEN ? AND ?
		ORDER BY session_date ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("find sessions %s..%s: %w", from, to, err)
	}
	return sessions, nil
}

func (s *ClockStore) ListSessionsByUser(ctx context.Context, userID string, filter repository.SessionFilter) ([]models.WorkSession, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if !filter.From.IsZero() {
		where = append(where, "session_date >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		where = append(where, "session_date <= ?")
		args = append(args, filter.To)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_sessions WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	query := `SELECT ` + sessionColumns + ` FROM work_sessions WHERE ` + clause + ` ORDER BY session_date DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	sessions, err := s.querySessions(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, total, nil
}

// WithTx runs fn inside a single SQLite transaction.
func (s *ClockStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.ClockRepository) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", translateError(err))
	}
	if err := fn(ctx, &ClockStore{db: s.db, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.db.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translateError(err))
	}
	return nil
}
