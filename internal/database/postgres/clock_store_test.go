package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"timeclock/internal/models"
	"timeclock/internal/repository"
)

func TestSessionMapping(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	in := time.Date(2024, 1, 15, 8, 0, 0, 0, santiago)
	lunch := in.Add(4 * time.Hour)

	session := models.WorkSession{
		ID:                 "s1",
		UserID:             "u1",
		Date:               models.DateOf(in, santiago),
		ClockInTime:        &in,
		LunchStartTime:     &lunch,
		Status:             models.StatusOnLunch,
		TotalWorkMinutes:   240,
		TotalWorkHours:     4,
		CarriedWorkMinutes: 30,
		Version:            3,
	}

	row := toSessionModel(session)
	assert.Equal(t, time.UTC, row.ClockInTime.Location())
	assert.Nil(t, row.ClockOutTime)
	assert.Equal(t, "on_lunch", row.Status)

	back := toDomainSession(row)
	assert.Equal(t, session.Date, back.Date)
	assert.True(t, in.Equal(*back.ClockInTime))
	assert.True(t, lunch.Equal(*back.LunchStartTime))
	assert.Equal(t, models.StatusOnLunch, back.Status)
	assert.Equal(t, 30, back.CarriedWorkMinutes)
	assert.Equal(t, int64(3), back.Version)

	// the mapper must not alias the caller's timestamps
	*row.ClockInTime = row.ClockInTime.Add(time.Hour)
	assert.True(t, in.Equal(*session.ClockInTime))
}

func TestSessionUpdates(t *testing.T) {
	now := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
	updates := sessionUpdates(sessionModel{Version: 4, Status: "completed"}, now)

	assert.Equal(t, int64(5), updates["version"])
	assert.Equal(t, now, updates["updated_at"])
	assert.Contains(t, updates, "lunch_end_time")
	assert.Nil(t, updates["lunch_end_time"])
	assert.NotContains(t, updates, "id")
	assert.NotContains(t, updates, "session_date")
}

func TestEventMapping(t *testing.T) {
	at := time.Date(2024, 1, 15, 23, 30, 0, 0, time.FixedZone("CLST", -3*3600))
	e := models.TimeEvent{
		ID: "e1", UserID: "u1", Kind: models.KindClockOut, Timestamp: at,
		CalendarDate: models.Date{Year: 2024, Month: time.January, Day: 15}, Timezone: "America/Santiago",
	}

	row := toEventModel(e)
	assert.Equal(t, "clock_out", row.Kind)
	assert.Equal(t, 16, row.OccurredAt.Day())

	back := toDomainEvent(row)
	assert.True(t, at.Equal(back.Timestamp))
	assert.Equal(t, e.CalendarDate, back.CalendarDate)
	assert.Equal(t, models.KindClockOut, back.Kind)
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))
	assert.ErrorIs(t, translateError(gorm.ErrDuplicatedKey), repository.ErrConflict)

	other := errors.New("connection reset")
	assert.Equal(t, other, translateError(other))
}

func TestMigrations(t *testing.T) {
	raw, err := migrationFS.ReadFile("migrations/001_clock.sql")
	require.NoError(t, err)

	stmts := splitStatements(string(raw))
	require.Len(t, stmts, 5)
	assert.Contains(t, stmts[len(stmts)-1], "WHERE status <> 'completed'")
	for _, s := range stmts {
		assert.NotContains(t, s, ";")
	}
}
