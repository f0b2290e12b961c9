package postgres

import (
	"time"

	"timeclock/internal/models"
)

type eventModel struct {
	ID           string      `gorm:"column:id;primaryKey"`
	UserID       string      `gorm:"column:user_id"`
	Kind         string      `gorm:"column:kind"`
	OccurredAt   time.Time   `gorm:"column:occurred_at"`
	CalendarDate models.Date `gorm:"column:calendar_date;type:date"`
	Timezone     string      `gorm:"column:timezone"`
	CreatedAt    time.Time   `gorm:"column:created_at"`
}

func (eventModel) TableName() string { return "time_events" }

type sessionModel struct {
	ID                  string      `gorm:"column:id;primaryKey"`
	UserID              string      `gorm:"column:user_id"`
	SessionDate         models.Date `gorm:"column:session_date;type:date"`
	ClockInTime         *time.Time  `gorm:"column:clock_in_time"`
	ClockOutTime        *time.Time  `gorm:"column:clock_out_time"`
	LunchStartTime      *time.Time  `gorm:"column:lunch_start_time"`
	LunchEndTime        *time.Time  `gorm:"column:lunch_end_time"`
	Status              string      `gorm:"column:status"`
	TotalWorkMinutes    int         `gorm:"column:total_work_minutes"`
	TotalLunchMinutes   int         `gorm:"column:total_lunch_minutes"`
	TotalWorkHours      float64     `gorm:"column:total_work_hours"`
	CarriedWorkMinutes  int         `gorm:"column:carried_work_minutes"`
	CarriedLunchMinutes int         `gorm:"column:carried_lunch_minutes"`
	Version             int64       `gorm:"column:version"`
	CreatedAt           time.Time   `gorm:"column:created_at"`
	UpdatedAt           time.Time   `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string { return "work_sessions" }

func toEventModel(e models.TimeEvent) eventModel {
	return eventModel{
		ID:           e.ID,
		UserID:       e.UserID,
		Kind:         string(e.Kind),
		OccurredAt:   e.Timestamp.UTC(),
		CalendarDate: e.CalendarDate,
		Timezone:     e.Timezone,
		CreatedAt:    e.CreatedAt.UTC(),
	}
}

func toDomainEvent(row eventModel) models.TimeEvent {
	return models.TimeEvent{
		ID:           row.ID,
		UserID:       row.UserID,
		Kind:         models.EventKind(row.Kind),
		Timestamp:    row.OccurredAt,
		CalendarDate: row.CalendarDate,
		Timezone:     row.Timezone,
		CreatedAt:    row.CreatedAt,
	}
}

func toSessionModel(s models.WorkSession) sessionModel {
	return sessionModel{
		ID:                  s.ID,
		UserID:              s.UserID,
		SessionDate:         s.Date,
		ClockInTime:         utcPtr(s.ClockInTime),
		ClockOutTime:        utcPtr(s.ClockOutTime),
		LunchStartTime:      utcPtr(s.LunchStartTime),
		LunchEndTime:        utcPtr(s.LunchEndTime),
		Status:              string(s.Status),
		TotalWorkMinutes:    s.TotalWorkMinutes,
		TotalLunchMinutes:   s.TotalLunchMinutes,
		TotalWorkHours:      s.TotalWorkHours,
		CarriedWorkMinutes:  s.CarriedWorkMinutes,
		CarriedLunchMinutes: s.CarriedLunchMinutes,
		Version:             s.Version,
		CreatedAt:           s.CreatedAt.UTC(),
		UpdatedAt:           s.UpdatedAt.UTC(),
	}
}

func toDomainSession(row sessionModel) models.WorkSession {
	return models.WorkSession{
		ID:                  row.ID,
		UserID:              row.UserID,
		Date:                row.SessionDate,
		ClockInTime:         row.ClockInTime,
		ClockOutTime:        row.ClockOutTime,
		LunchStartTime:      row.LunchStartTime,
		LunchEndTime:        row.LunchEndTime,
		Status:              models.SessionStatus(row.Status),
		TotalWorkMinutes:    row.TotalWorkMinutes,
		TotalLunchMinutes:   row.TotalLunchMinutes,
		TotalWorkHours:      row.TotalWorkHours,
		CarriedWorkMinutes:  row.CarriedWorkMinutes,
		CarriedLunchMinutes: row.CarriedLunchMinutes,
		Version:             row.Version,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

// sessionUpdates lists the mutable columns; a map keeps nil timestamps.
func sessionUpdates(row sessionModel, now time.Time) map[string]any {
	return map[string]any{
		"clock_in_time":         row.ClockInTime,
		"clock_out_time":        row.ClockOutTime,
		"lunch_start_time":      row.LunchStartTime,
		"lunch_end_time":        row.LunchEndTime,
		"status":                row.Status,
		"total_work_minutes":    row.TotalWorkMinutes,
		"total_lunch_minutes":   row.TotalLunchMinutes,
		"total_work_hours":      row.TotalWorkHours,
		"carried_work_minutes":  row.CarriedWorkMinutes,
		"carried_lunch_minutes": row.CarriedLunchMinutes,
		"version":               row.Version + 1,
		"updated_at":            now,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
