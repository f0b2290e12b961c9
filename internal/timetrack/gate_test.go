package timetrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"timeclock/internal/models"
)

func TestComputeGate(t *testing.T) {
	p := testPolicy(t)

	t.Run("NoSession", func(t *testing.T) {
		g := p.ComputeGate(at(t, p, 8, 0), Facts{})
		assert.True(t, g.ClockIn.Enabled)
		assert.Equal(t, ActionState{Reason: "no active session"}, g.ClockOut)
		assert.Equal(t, "must clock in first", g.StartLunch.Reason)
		assert.Equal(t, "must clock in first", g.ResumeShift.Reason)
		assert.Equal(t, []models.EventKind{models.KindClockIn}, g.Enabled())
	})

	t.Run("CompletedWithinRest", func(t *testing.T) {
		lastOut := at(t, p, 17, 0)
		s := activeSession(p, at(t, p, 8, 0))
		closed := CloseAt(*s, lastOut)

		g := p.ComputeGate(at(t, p, 17, 45), Facts{Session: &closed, LastClockOut: &lastOut})
		assert.False(t, g.ClockIn.Enabled)
		assert.Contains(t, g.ClockIn.Reason, "15 minutes remaining")

		g = p.ComputeGate(at(t, p, 18, 0), Facts{Session: &closed, LastClockOut: &lastOut})
		assert.True(t, g.ClockIn.Enabled)
	})

	t.Run("ActiveMorning", func(t *testing.T) {
		s := activeSession(p, at(t, p, 8, 0))
		g := p.ComputeGate(at(t, p, 8, 0), Facts{Session: s})
		assert.Equal(t, "already has an active session", g.ClockIn.Reason)
		assert.True(t, g.ClockOut.Enabled)
		assert.False(t, g.StartLunch.Enabled)
		assert.Contains(t, g.StartLunch.Reason, "lunch can only start")
		assert.Equal(t, "not on lunch", g.ResumeShift.Reason)
	})

	t.Run("ActiveInsideLunchWindow", func(t *testing.T) {
		s := activeSession(p, at(t, p, 8, 0))
		g := p.ComputeGate(at(t, p, 12, 0), Facts{Session: s})
		assert.Equal(t, []models.EventKind{models.KindClockOut, models.KindStartLunch}, g.Enabled())
	})

	t.Run("LunchAlreadyTaken", func(t *testing.T) {
		s := activeSession(p, at(t, p, 8, 0))
		s.LunchStartTime = models.TimePtr(at(t, p, 12, 0))
		s.LunchEndTime = models.TimePtr(at(t, p, 12, 30))
		g := p.ComputeGate(at(t, p, 14, 0), Facts{Session: s})
		assert.False(t, g.StartLunch.Enabled)
	})

	t.Run("OnLunch", func(t *testing.T) {
		s := activeSession(p, at(t, p, 8, 0))
		s.Status = models.StatusOnLunch
		s.LunchStartTime = models.TimePtr(at(t, p, 12, 0))
		g := p.ComputeGate(at(t, p, 12, 30), Facts{Session: s})
		assert.False(t, g.ClockIn.Enabled)
		assert.Equal(t, "must end lunch first", g.ClockOut.Reason)
		assert.Equal(t, "already on lunch", g.StartLunch.Reason)
		assert.True(t, g.ResumeShift.Enabled)
	})

	t.Run("StrictGateChecksDailyCap", func(t *testing.T) {
		s := activeSession(p, at(t, p, 8, 0))
		g := p.ComputeGate(at(t, p, 18, 30), Facts{Session: s})
		assert.False(t, g.ClockOut.Enabled)
		assert.Contains(t, g.ClockOut.Reason, "10.5 hours")

		advisory := p
		advisory.StrictGate = false
		g = advisory.ComputeGate(at(t, p, 18, 30), Facts{Session: s})
		assert.True(t, g.ClockOut.Enabled)
	})

	t.Run("StrictGateChecksWeeklyCapAtClockIn", func(t *testing.T) {
		monday := models.DateOf(at(t, p, 8, 0), p.Location)
		week := []models.WorkSession{{ID: "full", Date: monday, TotalWorkMinutes: 2701}}
		friday := time.Date(2024, time.January, 19, 8, 0, 0, 0, p.Location)

		g := p.ComputeGate(friday, Facts{WeekSessions: week})
		assert.False(t, g.ClockIn.Enabled)
		assert.Contains(t, g.ClockIn.Reason, "weekly work limit")
	})

	t.Run("GateMatchesEvaluator", func(t *testing.T) {
		s := activeSession(p, at(t, p, 8, 0))
		lastOut := at(t, p, 7, 0)
		facts := Facts{Session: s, LastClockOut: &lastOut}
		for _, minute := range []int{0, 4 * 60, 10 * 60, 10*60 + 1, 11 * 60} {
			now := at(t, p, 8, 0).Add(time.Duration(minute) * time.Minute)
			g := p.ComputeGate(now, facts)
			for _, k := range models.Kinds {
				assert.Equal(t, len(p.Evaluate(k, now, facts)) == 0, g.For(k).Enabled, "%s at +%dm", k, minute)
			}
		}
	})
}
