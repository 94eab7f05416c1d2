package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// RateLimit returns middleware that applies per-client rate limiting using the
// provided domain.RateLimiter. Each unique client IP is limited to `limit`
// requests per `window` duration. Limiter errors fail open.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:api:" + extractClientIP(r)

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocalRateLimiter is an in-process token bucket per key, used when Redis is
// not configured. A key's bucket holds limit tokens refilled evenly over
// window. Buckets idle for longer than the idle horizon are dropped by Sweep.
type LocalRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*localBucket
	waitRate rate.Limit
	idle     time.Duration
	now      func() time.Time
}

type localBucket struct {
	lim      *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// NewLocalRateLimiter creates a LocalRateLimiter. Wait allows waitPerSecond
// calls per second per key; values <= 0 default to 1.
func NewLocalRateLimiter(waitPerSecond float64) *LocalRateLimiter {
	if waitPerSecond <= 0 {
		waitPerSecond = 1
	}
	return &LocalRateLimiter{
		buckets:  make(map[string]*localBucket),
		waitRate: rate.Limit(waitPerSecond),
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow consumes one token from key's bucket.
func (l *LocalRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := l.now()
	return l.bucket(key, limit, window, now).AllowN(now, 1), nil
}

// Wait blocks until key's wait bucket has a token or ctx is done.
func (l *LocalRateLimiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	b, ok := l.buckets["wait:"+key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.waitRate, 1)}
		l.buckets["wait:"+key] = b
	}
	b.lastSeen = l.now()
	l.mu.Unlock()
	return b.lim.Wait(ctx)
}

// Sweep drops buckets idle past the horizon and returns how many remain.
func (l *LocalRateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
	return len(l.buckets)
}

func (l *LocalRateLimiter) bucket(key string, limit int, window time.Duration, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok || b.limit != limit || b.window != window {
		b = &localBucket{
			lim:    rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			limit:  limit,
			window: window,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

var _ domain.RateLimiter = (*LocalRateLimiter)(nil)
