// Package ratelimit keeps one token bucket per arbitrary string key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Limiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	burst int
	limit rate.Limit
	now   func() time.Time
}

// New creates a limiter allowing bursts of capacity, refilled at perMinute tokens per minute.
func New(capacity, perMinute float64) *Limiter {
	burst := int(capacity)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		m:     make(map[string]*rate.Limiter),
		burst: burst,
		limit: rate.Limit(perMinute / 60),
		now:   time.Now,
	}
}

// Allow returns true if one token can be consumed for key. The token is taken
// under the map lock so Prune never drops a bucket between lookup and spend.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.m[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = lim
	}
	return lim.AllowN(now, 1)
}

// Prune drops buckets that are full again, keeping the map bounded by active keys.
func (l *Limiter) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, lim := range l.m {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.m, key)
			n++
		}
	}
	return n
}

// Len is the number of keys currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// Delay is how long key has to wait for its next token. Unknown keys wait zero.
func (l *Limiter) Delay(key string) time.Duration {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.m[key]
	if !ok || l.limit <= 0 {
		return 0
	}
	missing := 1 - lim.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(l.limit) * float64(time.Second))
}
