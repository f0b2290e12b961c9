package timetrack

import (
	"math"
	"time"

	"timeclock/internal/models"
)

// Projection holds the derived totals of a session at an instant.
type Projection struct {
	WorkMinutes  int     `json:"work_minutes"`
	LunchMinutes int     `json:"lunch_minutes"`
	WorkHours    float64 `json:"work_hours"`
	LunchOverrun bool    `json:"lunch_overrun,omitempty"`
}

// Project computes the totals of s. Open spans are measured up to now.
// Minutes carried from earlier segments of the same day are added on top.
func (p Policy) Project(s models.WorkSession, now time.Time) Projection {
	var span time.Duration
	switch {
	case s.ClockInTime != nil && s.ClockOutTime != nil:
		span = s.ClockOutTime.Sub(*s.ClockInTime)
	case s.ClockInTime != nil:
		span = now.Sub(*s.ClockInTime)
	}

	var lunch time.Duration
	switch {
	case s.LunchStartTime != nil && s.LunchEndTime != nil:
		lunch = s.LunchEndTime.Sub(*s.LunchStartTime)
	case s.LunchStartTime != nil && s.Status == models.StatusOnLunch:
		lunch = now.Sub(*s.LunchStartTime)
	}
	if lunch < 0 {
		lunch = 0
	}

	work := roundMinutes(span - lunch)
	if work < 0 {
		work = 0
	}
	work += s.CarriedWorkMinutes

	return Projection{
		WorkMinutes:  work,
		LunchMinutes: roundMinutes(lunch) + s.CarriedLunchMinutes,
		WorkHours:    math.Round(float64(work)/60*100) / 100,
		LunchOverrun: p.MaxLunch > 0 && lunch > p.MaxLunch,
	}
}

// Apply writes the projection of s at now onto s.
func (p Policy) Apply(s *models.WorkSession, now time.Time) Projection {
	proj := p.Project(*s, now)
	s.TotalWorkMinutes = proj.WorkMinutes
	s.TotalLunchMinutes = proj.LunchMinutes
	s.TotalWorkHours = proj.WorkHours
	return proj
}

// CloseAt returns a copy of s completed at the given instant. A running
// lunch ends at the same instant.
func CloseAt(s models.WorkSession, at time.Time) models.WorkSession {
	out := s.Clone()
	if out.Status == models.StatusOnLunch {
		out.LunchEndTime = models.TimePtr(at)
	}
	out.ClockOutTime = models.TimePtr(at)
	out.Status = models.StatusCompleted
	return out
}

// Transition returns a copy of s with the action recorded at the given
// instant. A clock-in on a completed session folds its totals into the
// carried minutes and starts a new segment. s may be nil for a first
// clock-in; the caller fills identity fields on the result.
func (p Policy) Transition(s *models.WorkSession, action models.EventKind, at time.Time) models.WorkSession {
	var out models.WorkSession
	if s != nil {
		out = s.Clone()
	}

	switch action {
	case models.KindClockIn:
		if out.Status == models.StatusCompleted {
			out.CarriedWorkMinutes = out.TotalWorkMinutes
			out.CarriedLunchMinutes = out.TotalLunchMinutes
			out.ClockOutTime = nil
			out.LunchStartTime = nil
			out.LunchEndTime = nil
		}
		out.ClockInTime = models.TimePtr(at)
		out.Status = models.StatusActive
	case models.KindClockOut:
		out = CloseAt(out, at)
	case models.KindStartLunch:
		out.LunchStartTime = models.TimePtr(at)
		out.Status = models.StatusOnLunch
	case models.KindResumeShift:
		out.LunchEndTime = models.TimePtr(at)
		out.Status = models.StatusActive
	}

	p.Apply(&out, at)
	return out
}
