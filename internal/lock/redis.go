package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockTimeout is returned when a Redis lock could not be taken before
// the wait limit.
var ErrLockTimeout = errors.New("lock wait timeout")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes locks with SET NX PX so that several service instances
// share the same per-user serialization.
type RedisLocker struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	retry   time.Duration
	maxWait time.Duration
	logger  *zerolog.Logger
}

// RedisOptions tunes a RedisLocker. Zero values fall back to defaults.
type RedisOptions struct {
	Prefix  string
	TTL     time.Duration
	Retry   time.Duration
	MaxWait time.Duration
}

// NewRedisLocker wraps an existing client.
func NewRedisLocker(client *redis.Client, opts RedisOptions, logger *zerolog.Logger) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "timeclock:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 25 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Second
	}
	return &RedisLocker{
		client:  client,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		retry:   opts.Retry,
		maxWait: opts.MaxWait,
		logger:  logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("redis lock %s: %w", key, ErrLockTimeout)
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be cancelled here.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn().Err(err).Str("key", redisKey).Msg("Failed to release redis lock")
			}
		})
	}, nil
}
