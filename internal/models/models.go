package models

import "time"

// EventKind identifies a clock action.
type EventKind string

const (
	KindClockIn     EventKind = "clock_in"
	KindClockOut    EventKind = "clock_out"
	KindStartLunch  EventKind = "start_lunch"
	KindResumeShift EventKind = "resume_shift"
)

// Kinds lists every clock action in gate order.
var Kinds = []EventKind{KindClockIn, KindClockOut, KindStartLunch, KindResumeShift}

// Valid reports whether k is a known action.
func (k EventKind) Valid() bool {
	switch k {
	case KindClockIn, KindClockOut, KindStartLunch, KindResumeShift:
		return true
	}
	return false
}

// SessionStatus is derived from the timestamps recorded on a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusOnLunch   SessionStatus = "on_lunch"
	StatusCompleted SessionStatus = "completed"
)

// IsOpen reports whether the session still accepts clock actions.
func (s SessionStatus) IsOpen() bool {
	return s == StatusActive || s == StatusOnLunch
}

// TimeEvent is an immutable record of a single clock action.
type TimeEvent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Kind         EventKind `json:"kind"`
	Timestamp    time.Time `json:"timestamp"`
	CalendarDate Date      `json:"calendar_date"`
	Timezone     string    `json:"timezone"`
	CreatedAt    time.Time `json:"created_at"`
}

// WorkSession is the per-user, per-day record built from time events.
type WorkSession struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Date           Date          `json:"date"`
	ClockInTime    *time.Time    `json:"clock_in_time,omitempty"`
	ClockOutTime   *time.Time    `json:"clock_out_time,omitempty"`
	LunchStartTime *time.Time    `json:"lunch_start_time,omitempty"`
	LunchEndTime   *time.Time    `json:"lunch_end_time,omitempty"`
	Status         SessionStatus `json:"status"`

	TotalWorkMinutes  int     `json:"total_work_minutes"`
	TotalLunchMinutes int     `json:"total_lunch_minutes"`
	TotalWorkHours    float64 `json:"total_work_hours"`

	// Minutes from earlier segments of the same day, folded in when a
	// completed session is reopened by a second clock-in.
	CarriedWorkMinutes  int `json:"carried_work_minutes,omitempty"`
	CarriedLunchMinutes int `json:"carried_lunch_minutes,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the session is active or on lunch.
func (s *WorkSession) IsOpen() bool {
	return s != nil && s.Status.IsOpen()
}

// Clone returns a deep copy so callers can mutate timestamps safely.
func (s WorkSession) Clone() WorkSession {
	out := s
	out.ClockInTime = cloneTime(s.ClockInTime)
	out.ClockOutTime = cloneTime(s.ClockOutTime)
	out.LunchStartTime = cloneTime(s.LunchStartTime)
	out.LunchEndTime = cloneTime(s.LunchEndTime)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
