package validation

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-identifier request rates with a token bucket per
// identifier (client IP, email, or token subject). This in-process limiter is
// the hot path; in a horizontally-scaled deployment the authoritative counters
// belong in the same shared store as the revocation set.
type RateLimiter struct {
	limiters sync.Map // map[string]*rateLimiterEntry
	rps      float64
	burst    int
}

// rateLimiterEntry holds a rate limiter and last access time for cleanup.
type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst capacity per identifier.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:   rps,
		burst: burst,
	}
}

// Allow reports whether a request from identifier is within its rate limit.
func (l *RateLimiter) Allow(identifier string) bool {
	return l.getLimiter(identifier).Allow()
}

// RetryAfter returns the delay after which identifier's next request would be
// admitted. Returns zero when a request would be admitted immediately.
func (l *RateLimiter) RetryAfter(identifier string) time.Duration {
	limiter := l.getLimiter(identifier)
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return delay
}

// StartCleanup periodically removes limiters that have not been accessed for
// an hour, preventing unbounded memory growth. Blocks until ctx is cancelled;
// run it on its own goroutine.
func (l *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			threshold := time.Now().Add(-1 * time.Hour)
			l.limiters.Range(func(key, value interface{}) bool {
				entry := value.(*rateLimiterEntry)
				entry.mu.Lock()
				shouldDelete := entry.lastAccess.Before(threshold)
				entry.mu.Unlock()

				if shouldDelete {
					l.limiters.Delete(key)
				}
				return true
			})
		}
	}
}

// getLimiter retrieves or creates a rate limiter for an identifier.
func (l *RateLimiter) getLimiter(identifier string) *rate.Limiter {
	if val, ok := l.limiters.Load(identifier); ok {
		entry := val.(*rateLimiterEntry)
		entry.mu.Lock()
		entry.lastAccess = time.Now()
		entry.mu.Unlock()
		return entry.limiter
	}

	entry := &rateLimiterEntry{
		limiter:    rate.NewLimiter(rate.Limit(l.rps), l.burst),
		lastAccess: time.Now(),
	}
	actual, _ := l.limiters.LoadOrStore(identifier, entry)
	return actual.(*rateLimiterEntry).limiter
}
