package discord

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter throttles interactions per Discord user so one person cannot
// burn the generation quota for everyone.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newUserLimiter allows one interaction per interval, with burst extra.
func newUserLimiter(interval time.Duration, burst int) *userLimiter {
	return &userLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(interval),
		burst:    burst,
	}
}

// Allow reports whether userID may proceed right now.
func (l *userLimiter) Allow(userID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
