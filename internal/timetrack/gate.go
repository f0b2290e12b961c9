package timetrack

import (
	"time"

	"timeclock/internal/models"
)

// ActionState tells whether one action is currently available.
type ActionState struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// Gate lists the availability of every clock action for a user.
type Gate struct {
	ClockIn     ActionState `json:"clock_in"`
	ClockOut    ActionState `json:"clock_out"`
	StartLunch  ActionState `json:"start_lunch"`
	ResumeShift ActionState `json:"resume_shift"`
}

// For returns the state of a single action.
func (g Gate) For(kind models.EventKind) ActionState {
	switch kind {
	case models.KindClockIn:
		return g.ClockIn
	case models.KindClockOut:
		return g.ClockOut
	case models.KindStartLunch:
		return g.StartLunch
	case models.KindResumeShift:
		return g.ResumeShift
	}
	return disabled("unknown action")
}

// Enabled returns the enabled actions in gate order.
func (g Gate) Enabled() []models.EventKind {
	var out []models.EventKind
	for _, k := range models.Kinds {
		if g.For(k).Enabled {
			out = append(out, k)
		}
	}
	return out
}

func enabled() ActionState { return ActionState{Enabled: true} }

func disabled(reason string) ActionState { return ActionState{Reason: reason} }

// fromOutcomes enables the action when every outcome passed, otherwise it
// carries the first failure message.
func fromOutcomes(outcomes ...Outcome) ActionState {
	for _, o := range outcomes {
		if !o.Valid {
			return disabled(o.Message)
		}
	}
	return enabled()
}

// ComputeGate derives the available actions from the session status at now.
func (p Policy) ComputeGate(now time.Time, f Facts) Gate {
	s := f.Session

	if !s.IsOpen() {
		clockIn := []Outcome{p.CheckRestPeriod(now, f.LastClockOut)}
		if p.StrictGate {
			clockIn = append(clockIn, p.CheckWeeklyCap(now, f.WeekSessions, "", 0))
		}
		return Gate{
			ClockIn:     fromOutcomes(clockIn...),
			ClockOut:    disabled("no active session"),
			StartLunch:  disabled("must clock in first"),
			ResumeShift: disabled("must clock in first"),
		}
	}

	if s.Status == models.StatusOnLunch {
		return Gate{
			ClockIn:     disabled("already has an active session"),
			ClockOut:    disabled("must end lunch first"),
			StartLunch:  disabled("already on lunch"),
			ResumeShift: enabled(),
		}
	}

	clockOut := enabled()
	if p.StrictGate {
		closed := p.Project(CloseAt(*s, now), now)
		clockOut = fromOutcomes(
			p.CheckDailyCap(*s, now),
			p.CheckWeeklyCap(now, f.WeekSessions, s.ID, closed.WorkMinutes),
		)
	}

	startLunch := fromOutcomes(CheckSequence(models.KindStartLunch, s), p.CheckLunchWindow(now))

	return Gate{
		ClockIn:     disabled("already has an active session"),
		ClockOut:    clockOut,
		StartLunch:  startLunch,
		ResumeShift: disabled("not on lunch"),
	}
}
