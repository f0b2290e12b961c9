package lock

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs workers that each hold the lock on key and checks that no
// two of them are inside the critical section at once.
func exercise(t *testing.T, l Locker, key string, workers int) {
	t.Helper()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestKeyedMutex(t *testing.T) {
	m := NewKeyedMutex()

	t.Run("Exclusive", func(t *testing.T) {
		exercise(t, m, "user-1", 16)
		assert.Equal(t, 0, m.Len())
	})

	t.Run("IndependentKeys", func(t *testing.T) {
		unlockA, err := m.Lock(context.Background(), "a")
		require.NoError(t, err)
		unlockB, err := m.Lock(context.Background(), "b")
		require.NoError(t, err)
		unlockA()
		unlockB()
		unlockB()
		assert.Equal(t, 0, m.Len())
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		unlock, err := m.Lock(context.Background(), "busy")
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = m.Lock(ctx, "busy")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, m.Len())
	})
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)

	l := NewRedisLocker(client, RedisOptions{Retry: time.Millisecond, MaxWait: 2 * time.Second}, &logger)

	t.Run("Exclusive", func(t *testing.T) {
		exercise(t, l, "user-1", 8)
		assert.False(t, mr.Exists("timeclock:lock:user-1"))
	})

	t.Run("KeyCarriesTTL", func(t *testing.T) {
		unlock, err := l.Lock(context.Background(), "user-2")
		require.NoError(t, err)
		assert.True(t, mr.Exists("timeclock:lock:user-2"))
		assert.Equal(t, 10*time.Second, mr.TTL("timeclock:lock:user-2"))
		unlock()
		assert.False(t, mr.Exists("timeclock:lock:user-2"))
	})

	t.Run("ReleaseKeepsForeignToken", func(t *testing.T) {
		unlock, err := l.Lock(context.Background(), "user-3")
		require.NoError(t, err)
		// Lock expired and was taken by someone else.
		require.NoError(t, mr.Set("timeclock:lock:user-3", "other"))
		unlock()
		got, err := mr.Get("timeclock:lock:user-3")
		require.NoError(t, err)
		assert.Equal(t, "other", got)
	})

	t.Run("Timeout", func(t *testing.T) {
		short := NewRedisLocker(client, RedisOptions{Retry: time.Millisecond, MaxWait: 20 * time.Millisecond}, &logger)
		require.NoError(t, mr.Set("timeclock:lock:user-4", "held"))
		_, err := short.Lock(context.Background(), "user-4")
		assert.ErrorIs(t, err, ErrLockTimeout)
	})

	t.Run("FailoverWhenRedisDown", func(t *testing.T) {
		local := NewKeyedMutex()
		f := NewFailoverLocker(l, local, &logger)
		mr.SetError("server down")
		defer mr.SetError("")

		unlock, err := f.Lock(context.Background(), "user-5")
		require.NoError(t, err)
		assert.True(t, f.Degraded())
		assert.Equal(t, 1, local.Len())
		unlock()
	})
}
