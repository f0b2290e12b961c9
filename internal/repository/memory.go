package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"timeclock/internal/models"
)

// MemoryRepository keeps events and sessions in process memory. It is used
// by tests and by the "memory" database driver.
type MemoryRepository struct {
	mu       sync.RWMutex
	events   []models.TimeEvent
	sessions map[string]models.WorkSession
	now      func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]models.WorkSession),
		now:      time.Now,
	}
}

func (r *MemoryRepository) CreateEvent(_ context.Context, event models.TimeEvent) (models.TimeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createEvent(event)
}

func (r *MemoryRepository) createEvent(event models.TimeEvent) (models.TimeEvent, error) {
	for _, e := range r.events {
		if e.ID == event.ID {
			return models.TimeEvent{}, ErrConflict
		}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}
	r.events = append(r.events, event)
	return event, nil
}

func (r *MemoryRepository) FindLastEventByUserAndKind(_ context.Context, userID string, kind models.EventKind) (*models.TimeEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *models.TimeEvent
	for i := range r.events {
		e := r.events[i]
		if e.UserID != userID || e.Kind != kind {
			continue
		}
		if last == nil || e.Timestamp.After(last.Timestamp) {
			last = &e
		}
	}
	return last, nil
}

func (r *MemoryRepository) ListEventsByUser(_ context.Context, userID string, limit int) ([]models.TimeEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.TimeEvent
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) FindSessionByUserAndDate(_ context.Context, userID string, date models.Date) (*models.WorkSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.UserID == userID && s.Date == date {
			c := s.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FindOpenSession(_ context.Context, userID string) (*models.WorkSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.openSession(userID, ""); ok {
		c := s.Clone()
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryRepository) openSession(userID, excludeID string) (models.WorkSession, bool) {
	for _, s := range r.sessions {
		if s.UserID == userID && s.ID != excludeID && s.Status.IsOpen() {
			return s, true
		}
	}
	return models.WorkSession{}, false
}

func (r *MemoryRepository) CreateSession(_ context.Context, session models.WorkSession) (models.WorkSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createSession(session)
}

func (r *MemoryRepository) createSession(session models.WorkSession) (models.WorkSession, error) {
	if _, ok := r.sessions[session.ID]; ok {
		return models.WorkSession{}, ErrConflict
	}
	for _, s := range r.sessions {
		if s.UserID == session.UserID && s.Date == session.Date {
			return models.WorkSession{}, ErrConflict
		}
	}
	if session.Status.IsOpen() {
		if _, ok := r.openSession(session.UserID, ""); ok {
			return models.WorkSession{}, ErrConflict
		}
	}

	now := r.now()
	session.Version = 1
	session.CreatedAt = now
	session.UpdatedAt = now
	r.sessions[session.ID] = session.Clone()
	return session, nil
}

func (r *MemoryRepository) UpdateSession(_ context.Context, session models.WorkSession) (models.WorkSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateSession(session)
}

func (r *MemoryRepository) updateSession(session models.WorkSession) (models.WorkSession, error) {
	stored, ok := r.sessions[session.ID]
	if !ok {
		return models.WorkSession{}, ErrNotFound
	}
	if stored.Version != session.Version {
		return models.WorkSession{}, ErrConflict
	}
	if session.Status.IsOpen() {
		if _, ok := r.openSession(session.UserID, session.ID); ok {
			return models.WorkSession{}, ErrConflict
		}
	}

	session.Version++
	session.CreatedAt = stored.CreatedAt
	session.UpdatedAt = r.now()
	r.sessions[session.ID] = session.Clone()
	return session, nil
}

func (r *MemoryRepository) FindSessionsByUserAndDateRange(_ context.Context, userID string, from, to models.Date) ([]models.WorkSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter := SessionFilter{From: from, To: to}
	out := r.matching(userID, filter)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *MemoryRepository) ListSessionsByUser(_ context.Context, userID string, filter SessionFilter) ([]models.WorkSession, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.matching(userID, filter)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })

	total := len(out)
	if filter.Offset >= total {
		return []models.WorkSession{}, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *MemoryRepository) matching(userID string, filter SessionFilter) []models.WorkSession {
	var out []models.WorkSession
	for _, s := range r.sessions {
		if s.UserID == userID && filter.InRange(s.Date) {
			out = append(out, s.Clone())
		}
	}
	return out
}

// WithTx undoes the writes made by fn when it returns an error. Views are
// not isolated from each other; the uniqueness checks run on every write.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx ClockRepository) error) error {
	tx := &memoryTx{MemoryRepository: r}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryTx records an undo entry for every write made through it.
type memoryTx struct {
	*MemoryRepository
	undo []func()
}

func (tx *memoryTx) CreateEvent(_ context.Context, event models.TimeEvent) (models.TimeEvent, error) {
	r := tx.MemoryRepository
	r.mu.Lock()
	defer r.mu.Unlock()

	created, err := r.createEvent(event)
	if err != nil {
		return created, err
	}
	tx.undo = append(tx.undo, func() {
		for i := range r.events {
			if r.events[i].ID == created.ID {
				r.events = append(r.events[:i], r.events[i+1:]...)
				return
			}
		}
	})
	return created, nil
}

func (tx *memoryTx) CreateSession(_ context.Context, session models.WorkSession) (models.WorkSession, error) {
	r := tx.MemoryRepository
	r.mu.Lock()
	defer r.mu.Unlock()

	created, err := r.createSession(session)
	if err != nil {
		return created, err
	}
	tx.undo = append(tx.undo, func() { delete(r.sessions, created.ID) })
	return created, nil
}

func (tx *memoryTx) UpdateSession(_ context.Context, session models.WorkSession) (models.WorkSession, error) {
	r := tx.MemoryRepository
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.sessions[session.ID].Clone()
	updated, err := r.updateSession(session)
	if err != nil {
		return updated, err
	}
	tx.undo = append(tx.undo, func() { r.sessions[previous.ID] = previous })
	return updated, nil
}

func (tx *memoryTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx ClockRepository) error) error {
	return fn(ctx, tx)
}

func (tx *memoryTx) rollback() {
	r := tx.MemoryRepository
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}
