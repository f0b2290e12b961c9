package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per user and forgets idle users.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

func newUserLimiter(rps float64, burst int) *userLimiter {
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (u *userLimiter) Allow(userID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	if now.Sub(u.lastSweep) > limiterIdleTTL {
		for id, e := range u.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(u.entries, id)
			}
		}
		u.lastSweep = now
	}

	e, ok := u.entries[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(u.limit, u.burst)}
		u.entries[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (u *userLimiter) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.entries)
}
