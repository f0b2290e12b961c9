package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverLocker uses the primary locker and switches to the fallback while
// the primary is failing. The primary is retried after recheckAfter.
type FailoverLocker struct {
	primary  Locker
	fallback Locker
	logger   *zerolog.Logger

	isDown       atomic.Bool
	mu           sync.Mutex
	lastCheck    time.Time
	recheckAfter time.Duration
}

// NewFailoverLocker combines a distributed primary with a local fallback.
func NewFailoverLocker(primary, fallback Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recheckAfter: time.Minute,
	}
}

func (f *FailoverLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if f.isDown.Load() && !f.shouldRecheck() {
		return f.fallback.Lock(ctx, key)
	}

	unlock, err := f.primary.Lock(ctx, key)
	if err == nil {
		if f.isDown.CompareAndSwap(true, false) {
			f.logger.Info().Msg("Primary locker recovered")
		}
		return unlock, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrLockTimeout) {
		return nil, err
	}

	f.markDown(err)
	return f.fallback.Lock(ctx, key)
}

// Degraded reports whether the fallback is in use.
func (f *FailoverLocker) Degraded() bool {
	return f.isDown.Load()
}

func (f *FailoverLocker) shouldRecheck() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < f.recheckAfter {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *FailoverLocker) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("Primary locker failed, using local fallback")
	}
}
