package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timeclock/internal/lock"
	"timeclock/internal/metrics"
	"timeclock/internal/models"
	"timeclock/internal/repository"
	"timeclock/internal/timetrack"
)

const (
	defaultActivityLimit = 10
	maxActivityLimit     = 100
	defaultPageSize      = 20
	maxPageSize          = 100
)

// EventPublisher receives committed clock actions.
type EventPublisher interface {
	PublishJSON(ctx context.Context, eventType, key string, payload any) error
}

// ActionResult is returned by every successful clock action.
type ActionResult struct {
	Session models.WorkSession `json:"session"`
	Event   models.TimeEvent   `json:"event"`
	Gate    timetrack.Gate     `json:"gate"`
}

// Status is the current view of a user's workday.
type Status struct {
	UserID     string                `json:"user_id"`
	Session    *models.WorkSession   `json:"session,omitempty"`
	Projection *timetrack.Projection `json:"projection,omitempty"`
	Gate       timetrack.Gate        `json:"gate"`
	AsOf       time.Time             `json:"as_of"`
}

// SessionQuery pages through a user's session history. Page starts at 1.
type SessionQuery struct {
	Page  int
	Limit int
	From  models.Date
	To    models.Date
}

// SessionPage is one page of session history.
type SessionPage struct {
	Sessions   []models.WorkSession `json:"sessions"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	Total      int                  `json:"total"`
	TotalPages int                  `json:"total_pages"`
}

// ClockService records clock actions for users and answers status queries.
type ClockService struct {
	repo       repository.ClockRepository
	locker     lock.Locker
	bus        EventPublisher
	policy     atomic.Pointer[timetrack.Policy]
	maxRetries int
	newID      func() string
	logger     *zerolog.Logger
}

// NewClockService wires the orchestrator. locker and bus may be nil.
func NewClockService(
	repo repository.ClockRepository,
	locker lock.Locker,
	bus EventPublisher,
	policy timetrack.Policy,
	maxRetries int,
	logger *zerolog.Logger,
) *ClockService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	svc := &ClockService{
		repo:       repo,
		locker:     locker,
		bus:        bus,
		maxRetries: maxRetries,
		newID:      uuid.NewString,
		logger:     logger,
	}
	svc.SetPolicy(policy)
	return svc
}

// Policy returns the limits currently in force.
func (s *ClockService) Policy() timetrack.Policy {
	return *s.policy.Load()
}

// SetPolicy swaps the limits used by subsequent actions.
func (s *ClockService) SetPolicy(p timetrack.Policy) {
	p = p.WithDefaults()
	s.policy.Store(&p)
}

func (s *ClockService) ClockIn(ctx context.Context, userID string, at time.Time) (*ActionResult, error) {
	return s.Record(ctx, userID, models.KindClockIn, at)
}

func (s *ClockService) ClockOut(ctx context.Context, userID string, at time.Time) (*ActionResult, error) {
	return s.Record(ctx, userID, models.KindClockOut, at)
}

func (s *ClockService) StartLunch(ctx context.Context, userID string, at time.Time) (*ActionResult, error) {
	return s.Record(ctx, userID, models.KindStartLunch, at)
}

func (s *ClockService) ResumeShift(ctx context.Context, userID string, at time.Time) (*ActionResult, error) {
	return s.Record(ctx, userID, models.KindResumeShift, at)
}

// Record validates and persists a single clock action. Rule violations are
// returned as *ValidationError and leave storage untouched.
func (s *ClockService) Record(ctx context.Context, userID string, kind models.EventKind, at time.Time) (*ActionResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, kind)
	}
	if at.IsZero() {
		return nil, fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}

	logger := s.logger.With().Str("user_id", userID).Str("action", string(kind)).Logger()
	policy := s.Policy()

	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		metrics.IncClockAction(string(kind), ErrorKind(err))
		return nil, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()
	metrics.ObserveLockWait(time.Since(waitStart))

	var result *ActionResult
	for attempt := 0; ; attempt++ {
		result, err = s.attempt(ctx, policy, userID, kind, at)
		if !errors.Is(err, repository.ErrConflict) || attempt >= s.maxRetries {
			break
		}
		metrics.IncConflictRetry()
		logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Write conflict, retrying clock action")
	}

	if errors.Is(err, repository.ErrConflict) {
		err = fmt.Errorf("record %s for %s: %w", kind, userID, ErrConflict)
	}
	metrics.IncClockAction(string(kind), ErrorKind(err))

	var verr *ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		for _, v := range verr.Violations {
			metrics.IncRuleViolation(string(v.Code))
		}
		logger.Info().Strs("codes", codeStrings(verr.Codes())).Msg("Clock action rejected")
		return nil, err
	case errors.Is(err, ErrNotFound):
		logger.Info().Msg("Clock action without session")
		return nil, err
	default:
		logger.Error().Err(err).Msg("Failed to record clock action")
		return nil, err
	}

	logger.Info().
		Str("session_id", result.Session.ID).
		Str("status", string(result.Session.Status)).
		Int("work_minutes", result.Session.TotalWorkMinutes).
		Msg("Clock action recorded")

	s.publish(ctx, result)
	return result, nil
}

func (s *ClockService) attempt(ctx context.Context, policy timetrack.Policy, userID string, kind models.EventKind, at time.Time) (*ActionResult, error) {
	facts, err := s.loadFacts(ctx, policy, userID, at)
	if err != nil {
		return nil, err
	}

	if kind != models.KindClockIn && facts.Session == nil {
		return nil, fmt.Errorf("%s for %s: %w", kind, userID, ErrNotFound)
	}
	if failures := policy.Evaluate(kind, at, facts); len(failures) > 0 {
		return nil, &ValidationError{Violations: failures}
	}

	next := policy.Transition(facts.Session, kind, at)
	if facts.Session == nil {
		next.ID = s.newID()
		next.UserID = userID
		next.Date = models.DateOf(at, policy.Location)
	}
	event := models.TimeEvent{
		ID:           s.newID(),
		UserID:       userID,
		Kind:         kind,
		Timestamp:    at,
		CalendarDate: next.Date,
		Timezone:     policy.Location.String(),
	}

	var saved models.WorkSession
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx repository.ClockRepository) error {
		var err error
		if facts.Session == nil {
			saved, err = tx.CreateSession(ctx, next)
		} else {
			saved, err = tx.UpdateSession(ctx, next)
		}
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		event, err = tx.CreateEvent(ctx, event)
		if err != nil {
			return fmt.Errorf("save event: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The session disappeared between read and write.
			return nil, fmt.Errorf("%w: %w", repository.ErrConflict, err)
		}
		return nil, err
	}

	after := facts
	after.Session = &saved
	after.WeekSessions = replaceSession(facts.WeekSessions, saved)
	if kind == models.KindClockOut {
		after.LastClockOut = &at
	}

	return &ActionResult{
		Session: saved,
		Event:   event,
		Gate:    policy.ComputeGate(at, after),
	}, nil
}

// loadFacts gathers the history rules need. The current session is the open
// one if any, so a shift that crossed midnight stays on its start date.
func (s *ClockService) loadFacts(ctx context.Context, policy timetrack.Policy, userID string, at time.Time) (timetrack.Facts, error) {
	var facts timetrack.Facts
	repo := s.repo

	session, err := repo.FindOpenSession(ctx, userID)
	if err != nil {
		return facts, fmt.Errorf("find open session: %w", err)
	}
	if session == nil {
		session, err = repo.FindSessionByUserAndDate(ctx, userID, models.DateOf(at, policy.Location))
		if err != nil {
			return facts, fmt.Errorf("find session by date: %w", err)
		}
	}
	facts.Session = session

	last, err := repo.FindLastEventByUserAndKind(ctx, userID, models.KindClockOut)
	if err != nil {
		return facts, fmt.Errorf("find last clock out: %w", err)
	}
	if last != nil {
		ts := last.Timestamp
		facts.LastClockOut = &ts
	}

	from, to := policy.WeekRange(at)
	facts.WeekSessions, err = repo.FindSessionsByUserAndDateRange(ctx, userID, from, to)
	if err != nil {
		return facts, fmt.Errorf("find week sessions: %w", err)
	}
	return facts, nil
}

func (s *ClockService) publish(ctx context.Context, result *ActionResult) {
	if s.bus == nil {
		return
	}
	eventType := "clock." + string(result.Event.Kind)
	if err := s.bus.PublishJSON(ctx, eventType, result.Event.UserID, result); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to publish clock event")
	}
}

// GetCurrentStatus projects the current session at now and computes the gate.
func (s *ClockService) GetCurrentStatus(ctx context.Context, userID string, now time.Time) (*Status, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	policy := s.Policy()
	facts, err := s.loadFacts(ctx, policy, userID, now)
	if err != nil {
		return nil, err
	}

	status := &Status{UserID: userID, AsOf: now}
	if facts.Session != nil {
		session := facts.Session.Clone()
		proj := policy.Apply(&session, now)
		status.Session = &session
		status.Projection = &proj
		facts.WeekSessions = replaceSession(facts.WeekSessions, session)
	}
	status.Gate = policy.ComputeGate(now, facts)
	return status, nil
}

// GetTodaySession returns the current session re-projected at now.
func (s *ClockService) GetTodaySession(ctx context.Context, userID string, now time.Time) (*models.WorkSession, error) {
	status, err := s.GetCurrentStatus(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if status.Session == nil {
		return nil, fmt.Errorf("today session for %s: %w", userID, ErrNotFound)
	}
	return status.Session, nil
}

// GetRecentActivities returns the latest events of a user, newest first.
func (s *ClockService) GetRecentActivities(ctx context.Context, userID string, limit int) ([]models.TimeEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	events, err := s.repo.ListEventsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []models.TimeEvent{}
	}
	return events, nil
}

// GetUserSessions returns one page of session history, newest first.
func (s *ClockService) GetUserSessions(ctx context.Context, userID string, q SessionQuery) (*SessionPage, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, fmt.Errorf("%w: range end %s precedes start %s", ErrInvalidInput, q.To, q.From)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}

	sessions, total, err := s.repo.ListSessionsByUser(ctx, userID, repository.SessionFilter{
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
		Offset: (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []models.WorkSession{}
	}

	return &SessionPage{
		Sessions:   sessions,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

func replaceSession(sessions []models.WorkSession, s models.WorkSession) []models.WorkSession {
	out := make([]models.WorkSession, 0, len(sessions)+1)
	for _, existing := range sessions {
		if existing.ID != s.ID {
			out = append(out, existing)
		}
	}
	return append(out, s)
}

func codeStrings(codes []timetrack.Code) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
