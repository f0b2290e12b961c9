package timetrack

import (
	"time"

	"timeclock/internal/models"
)

// Facts is the history an action is evaluated against.
type Facts struct {
	// Session is the user's open session, or the session of the local date
	// of the evaluated instant when nothing is open. Nil when neither exists.
	Session *models.WorkSession
	// LastClockOut is the timestamp of the user's latest clock-out event.
	LastClockOut *time.Time
	// WeekSessions may be any superset of the sessions in the ISO week of
	// the evaluated instant; the weekly rule filters by date itself.
	WeekSessions []models.WorkSession
}

// CheckSequence validates that the action follows from the session status.
func CheckSequence(action models.EventKind, s *models.WorkSession) Outcome {
	switch action {
	case models.KindClockIn:
		if s.IsOpen() {
			return violation(CodeSessionOpen, 0, 0, "user already has an active session")
		}
	case models.KindClockOut:
		if !s.IsOpen() {
			return violation(CodeNoOpenSession, 0, 0, "no active session to clock out")
		}
	case models.KindStartLunch:
		switch {
		case s == nil || !s.IsOpen():
			return violation(CodeNotActive, 0, 0, "must clock in first")
		case s.Status == models.StatusOnLunch:
			return violation(CodeNotActive, 0, 0, "already on lunch")
		case s.LunchEndTime != nil:
			// A segment records a single lunch start/end pair.
			return violation(CodeLunchTaken, 0, 0, "lunch already taken in this shift")
		}
	case models.KindResumeShift:
		if s == nil || s.Status != models.StatusOnLunch {
			return violation(CodeNotOnLunch, 0, 0, "not on lunch")
		}
	}
	return Pass()
}

// CheckChronology rejects an action stamped before the latest instant
// already recorded on the session.
func CheckChronology(at time.Time, s *models.WorkSession) Outcome {
	if s == nil {
		return Pass()
	}
	var last time.Time
	for _, t := range []*time.Time{s.ClockInTime, s.LunchStartTime, s.LunchEndTime, s.ClockOutTime} {
		if t != nil && t.After(last) {
			last = *t
		}
	}
	if last.IsZero() || !at.Before(last) {
		return Pass()
	}
	return violation(CodeOutOfOrder, 0, 0,
		"timestamp %s is earlier than the last recorded action at %s",
		at.Format(time.RFC3339), last.Format(time.RFC3339))
}

// CheckRestPeriod rejects a clock-in that comes less than MinRest after the
// previous clock-out. Remaining minutes are rounded up.
func (p Policy) CheckRestPeriod(at time.Time, lastClockOut *time.Time) Outcome {
	if lastClockOut == nil {
		return Pass()
	}
	earliest := lastClockOut.Add(p.MinRest)
	if !at.Before(earliest) {
		return Pass()
	}
	remaining := ceilMinutes(earliest.Sub(at))
	limit := roundMinutes(p.MinRest)
	return violation(CodeRestPeriod, remaining, limit,
		"minimum rest between shifts is %d minutes; %d minutes remaining", limit, remaining)
}

// CheckLunchWindow rejects a lunch start outside the local-hour window.
func (p Policy) CheckLunchWindow(at time.Time) Outcome {
	local := p.Local(at)
	if h := local.Hour(); h >= p.LunchWindowStart && h < p.LunchWindowEnd {
		return Pass()
	}
	return violation(CodeLunchWindow, 0, 0,
		"lunch can only start between %02d:00 and %02d:00 (local time is %s)",
		p.LunchWindowStart, p.LunchWindowEnd, local.Format("15:04"))
}

// CheckLunchDuration rejects a lunch longer than MaxLunch, reporting the
// actual length rounded to the nearest minute.
func (p Policy) CheckLunchDuration(start, end time.Time) Outcome {
	d := end.Sub(start)
	if d <= p.MaxLunch {
		return Pass()
	}
	actual := roundMinutes(d)
	limit := roundMinutes(p.MaxLunch)
	return violation(CodeLunchTooLong, actual, limit,
		"lunch lasted %d minutes; the maximum is %d minutes", actual, limit)
}

// CheckDailyCap rejects closing s at the given instant when the day's
// worked minutes would exceed MaxDailyWork.
func (p Policy) CheckDailyCap(s models.WorkSession, at time.Time) Outcome {
	total := p.Project(CloseAt(s, at), at).WorkMinutes
	limit := roundMinutes(p.MaxDailyWork)
	if total <= limit {
		return Pass()
	}
	return violation(CodeDailyCap, total, limit,
		"daily work limit is %.1f hours; closing now totals %.1f hours", hours(limit), hours(total))
}

// CheckWeeklyCap sums TotalWorkMinutes of the sessions in the ISO week of
// at, skipping excludeID, and rejects when adding would exceed MaxWeeklyWork.
func (p Policy) CheckWeeklyCap(at time.Time, sessions []models.WorkSession, excludeID string, adding int) Outcome {
	total := p.WeekMinutes(at, sessions, excludeID) + adding
	limit := roundMinutes(p.MaxWeeklyWork)
	if total <= limit {
		return Pass()
	}
	return violation(CodeWeeklyCap, total, limit,
		"weekly work limit is %.1f hours; week total would be %.1f hours", hours(limit), hours(total))
}

// WeekRange returns the Monday and Sunday of the local ISO week of at.
func (p Policy) WeekRange(at time.Time) (models.Date, models.Date) {
	monday := models.DateOf(at, p.Location).StartOfISOWeek()
	return monday, monday.AddDays(6)
}

// WeekMinutes sums the recorded totals of the sessions dated in the ISO
// week of at.
func (p Policy) WeekMinutes(at time.Time, sessions []models.WorkSession, excludeID string) int {
	from, to := p.WeekRange(at)
	total := 0
	for _, s := range sessions {
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		total += s.TotalWorkMinutes
	}
	return total
}

// Evaluate runs every rule applicable to action and returns all failures.
// An empty result means the action may proceed.
func (p Policy) Evaluate(action models.EventKind, at time.Time, f Facts) []Outcome {
	out := Failures(CheckSequence(action, f.Session), CheckChronology(at, f.Session))

	switch action {
	case models.KindClockIn:
		out = append(out, Failures(
			p.CheckRestPeriod(at, f.LastClockOut),
			p.CheckWeeklyCap(at, f.WeekSessions, "", 0),
		)...)
	case models.KindClockOut:
		if f.Session.IsOpen() {
			closed := p.Project(CloseAt(*f.Session, at), at)
			out = append(out, Failures(
				p.CheckDailyCap(*f.Session, at),
				p.CheckWeeklyCap(at, f.WeekSessions, f.Session.ID, closed.WorkMinutes),
			)...)
			// Closing ends a running lunch at the same instant.
			if f.Session.Status == models.StatusOnLunch && f.Session.LunchStartTime != nil {
				out = append(out, Failures(p.CheckLunchDuration(*f.Session.LunchStartTime, at))...)
			}
		}
	case models.KindStartLunch:
		out = append(out, Failures(p.CheckLunchWindow(at))...)
	case models.KindResumeShift:
		if f.Session != nil && f.Session.Status == models.StatusOnLunch && f.Session.LunchStartTime != nil {
			out = append(out, Failures(p.CheckLunchDuration(*f.Session.LunchStartTime, at))...)
		}
	}
	return out
}
