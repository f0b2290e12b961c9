package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeclock/internal/models"
)

func day(d int) models.Date {
	return models.Date{Year: 2024, Month: time.January, Day: d}
}

func session(id, user string, d models.Date, status models.SessionStatus) models.WorkSession {
	return models.WorkSession{ID: id, UserID: user, Date: d, Status: status}
}

func TestMemoryRepository_Sessions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	created, err := repo.CreateSession(ctx, session("s1", "u1", day(15), models.StatusActive))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.False(t, created.CreatedAt.IsZero())

	t.Run("OnePerUserAndDate", func(t *testing.T) {
		_, err := repo.CreateSession(ctx, session("s2", "u1", day(15), models.StatusCompleted))
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("OneOpenSessionPerUser", func(t *testing.T) {
		_, err := repo.CreateSession(ctx, session("s3", "u1", day(16), models.StatusActive))
		assert.ErrorIs(t, err, ErrConflict)

		_, err = repo.CreateSession(ctx, session("s4", "u2", day(15), models.StatusActive))
		assert.NoError(t, err)
	})

	t.Run("FindOpenAcrossDates", func(t *testing.T) {
		open, err := repo.FindOpenSession(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, "s1", open.ID)

		none, err := repo.FindOpenSession(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("UpdateChecksVersion", func(t *testing.T) {
		stale := created
		stale.Status = models.StatusCompleted
		updated, err := repo.UpdateSession(ctx, stale)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		_, err = repo.UpdateSession(ctx, stale)
		assert.ErrorIs(t, err, ErrConflict)

		_, err = repo.UpdateSession(ctx, session("missing", "u1", day(1), models.StatusCompleted))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ReturnedValuesAreCopies", func(t *testing.T) {
		found, err := repo.FindSessionByUserAndDate(ctx, "u1", day(15))
		require.NoError(t, err)
		require.NotNil(t, found)
		found.Status = models.StatusActive

		again, err := repo.FindSessionByUserAndDate(ctx, "u1", day(15))
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, again.Status)
	})
}

func TestMemoryRepository_Listing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for d := 10; d <= 16; d++ {
		_, err := repo.CreateSession(ctx, models.WorkSession{
			ID: "s" + day(d).String(), UserID: "u1", Date: day(d), Status: models.StatusCompleted, TotalWorkMinutes: d,
		})
		require.NoError(t, err)
	}

	week, err := repo.FindSessionsByUserAndDateRange(ctx, "u1", day(15), day(21))
	require.NoError(t, err)
	require.Len(t, week, 2)
	assert.Equal(t, day(15), week[0].Date)

	page, total, err := repo.ListSessionsByUser(ctx, "u1", SessionFilter{Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, page, 3)
	assert.Equal(t, day(13), page[0].Date)
	assert.Equal(t, day(11), page[2].Date)

	page, total, err = repo.ListSessionsByUser(ctx, "u1", SessionFilter{From: day(12), To: day(13)})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 2)

	page, _, err = repo.ListSessionsByUser(ctx, "u1", SessionFilter{Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryRepository_Events(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	kinds := []models.EventKind{models.KindClockIn, models.KindClockOut, models.KindClockIn, models.KindClockOut}
	for i, k := range kinds {
		_, err := repo.CreateEvent(ctx, models.TimeEvent{
			ID: string(rune('a' + i)), UserID: "u1", Kind: k, Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	last, err := repo.FindLastEventByUserAndKind(ctx, "u1", models.KindClockOut)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "d", last.ID)

	none, err := repo.FindLastEventByUserAndKind(ctx, "u1", models.KindStartLunch)
	require.NoError(t, err)
	assert.Nil(t, none)

	recent, err := repo.ListEventsByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].ID)
	assert.Equal(t, "c", recent[1].ID)
}

func TestMemoryRepository_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	original, err := repo.CreateSession(ctx, session("s1", "u1", day(15), models.StatusActive))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repo.WithTx(ctx, func(ctx context.Context, tx ClockRepository) error {
		closed := original
		closed.Status = models.StatusCompleted
		if _, err := tx.UpdateSession(ctx, closed); err != nil {
			return err
		}
		if _, err := tx.CreateSession(ctx, session("s2", "u1", day(16), models.StatusActive)); err != nil {
			return err
		}
		if _, err := tx.CreateEvent(ctx, models.TimeEvent{ID: "e1", UserID: "u1", Kind: models.KindClockIn}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	open, err := repo.FindOpenSession(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "s1", open.ID)
	assert.Equal(t, int64(1), open.Version)

	events, err := repo.ListEventsByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	other, err := repo.FindSessionByUserAndDate(ctx, "u1", day(16))
	require.NoError(t, err)
	assert.Nil(t, other)
}
