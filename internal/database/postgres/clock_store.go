package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"timeclock/internal/models"
	"timeclock/internal/repository"
)

// ClockStore implements repository.ClockRepository on PostgreSQL.
type ClockStore struct {
	db   *gorm.DB
	inTx bool
}

var _ repository.ClockRepository = (*ClockStore)(nil)

func NewClockStore(db *gorm.DB) *ClockStore {
	return &ClockStore{db: db}
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	}
	return err
}

func (s *ClockStore) CreateEvent(ctx context.Context, e models.TimeEvent) (models.TimeEvent, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	rec := toEventModel(e)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.TimeEvent{}, fmt.Errorf("insert time event: %w", translateError(err))
	}
	return e, nil
}

func (s *ClockStore) FindLastEventByUserAndKind(ctx context.Context, userID string, kind models.EventKind) (*models.TimeEvent, error) {
	var rec eventModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, string(kind)).
		Order("occurred_at DESC").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find last %s event: %w", kind, err)
	}
	e := toDomainEvent(rec)
	return &e, nil
}

func (s *ClockStore) ListEventsByUser(ctx context.Context, userID string, limit int) ([]models.TimeEvent, error) {
	var rows []eventModel
	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("occurred_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	result := make([]models.TimeEvent, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainEvent(row))
	}
	return result, nil
}

func (s *ClockStore) findSession(ctx context.Context, query string, args ...any) (*models.WorkSession, error) {
	var rec sessionModel
	err := s.db.WithContext(ctx).Where(query, args...).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session := toDomainSession(rec)
	return &session, nil
}

func (s *ClockStore) FindSessionByUserAndDate(ctx context.Context, userID string, date models.Date) (*models.WorkSession, error) {
	session, err := s.findSession(ctx, "user_id = ? AND session_date = ?", userID, date)
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", date, err)
	}
	return session, nil
}

func (s *ClockStore) FindOpenSession(ctx context.Context, userID string) (*models.WorkSession, error) {
	session, err := s.findSession(ctx, "user_id = ? AND status <> ?", userID, string(models.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return session, nil
}

func (s *ClockStore) CreateSession(ctx context.Context, session models.WorkSession) (models.WorkSession, error) {
	now := time.Now().UTC()
	session.Version = 1
	session.CreatedAt = now
	session.UpdatedAt = now

	rec := toSessionModel(session)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.WorkSession{}, fmt.Errorf("insert work session: %w", translateError(err))
	}
	return session, nil
}

func (s *ClockStore) UpdateSession(ctx context.Context, session models.WorkSession) (models.WorkSession, error) {
	now := time.Now().UTC()
	rec := toSessionModel(session)

	res := s.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("id = ? AND version = ?", session.ID, session.Version).
		Updates(sessionUpdates(rec, now))
	if res.Error != nil {
		return models.WorkSession{}, fmt.Errorf("update work session: %w", translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := s.db.WithContext(ctx).Model(&sessionModel{}).Where("id = ?", session.ID).Count(&exists).Error; err != nil {
			return models.WorkSession{}, fmt.Errorf("update work session: %w", err)
		}
		if exists == 0 {
			return models.WorkSession{}, fmt.Errorf("update work session %s: %w", session.ID, repository.ErrNotFound)
		}
		return models.WorkSession{}, fmt.Errorf("update work session %s: version %d: %w", session.ID, session.Version, repository.ErrConflict)
	}

	session.Version++
	session.UpdatedAt = now
	return session, nil
}

func (s *ClockStore) FindSessionsByUserAndDateRange(ctx context.Context, userID string, from, to models.Date) ([]models.WorkSession, error) {
	var rows []sessionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND session_date BETWEEN ? AND ?", userID, from, to).
		Order("session_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find sessions %s..%s: %w", from, to, err)
	}
	return toDomainSessions(rows), nil
}

func (s *ClockStore) ListSessionsByUser(ctx context.Context, userID string, filter repository.SessionFilter) ([]models.WorkSession, int, error) {
	query := s.db.WithContext(ctx).Model(&sessionModel{}).Where("user_id = ?", userID)
	if !filter.From.IsZero() {
		query = query.Where("session_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("session_date <= ?", filter.To)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	page := query.Order("session_date DESC")
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		page = page.Offset(filter.Offset)
	}

	var rows []sessionModel
	if err := page.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return toDomainSessions(rows), int(total), nil
}

// WithTx runs fn inside a GORM transaction; nested calls join the outer one.
func (s *ClockStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.ClockRepository) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &ClockStore{db: tx, inTx: true})
	})
}

func toDomainSessions(rows []sessionModel) []models.WorkSession {
	result := make([]models.WorkSession, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainSession(row))
	}
	return result
}
