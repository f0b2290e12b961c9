package lock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Unlock), args.Error(1)
}

func noopUnlock() {}

func TestFailoverLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	locker := NewFailoverLocker(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Lock", ctx, "user-1").Return(Unlock(noopUnlock), nil).Once()

		unlock, err := locker.Lock(ctx, "user-1")
		require.NoError(t, err)
		assert.NotNil(t, unlock)
		assert.False(t, locker.Degraded())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Lock", ctx, "user-2").Return(nil, errors.New("connection refused")).Once()
		fallback.On("Lock", ctx, "user-2").Return(Unlock(noopUnlock), nil).Once()

		unlock, err := locker.Lock(ctx, "user-2")
		require.NoError(t, err)
		assert.NotNil(t, unlock)
		assert.True(t, locker.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackUntilRecheck", func(t *testing.T) {
		fallback.On("Lock", ctx, "user-3").Return(Unlock(noopUnlock), nil).Once()

		_, err := locker.Lock(ctx, "user-3")
		require.NoError(t, err)
		primary.AssertNotCalled(t, "Lock", ctx, "user-3")
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		locker.isDown.Store(true)
		locker.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("Lock", ctx, "user-4").Return(Unlock(noopUnlock), nil).Once()

		_, err := locker.Lock(ctx, "user-4")
		require.NoError(t, err)
		assert.False(t, locker.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("TimeoutIsNotAFailure", func(t *testing.T) {
		primary.On("Lock", ctx, "user-5").Return(nil, ErrLockTimeout).Once()

		_, err := locker.Lock(ctx, "user-5")
		assert.ErrorIs(t, err, ErrLockTimeout)
		assert.False(t, locker.Degraded())
	})
}
