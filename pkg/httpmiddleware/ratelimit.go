package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-key sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests admitted per window.
	Max int
	// Window is the sliding window length.
	Window time.Duration
	// KeyFunc derives the limiter key from a request. Nil means client IP.
	KeyFunc func(*http.Request) string
}

// bucket holds the request counts of one key for the current window and the
// one before it. The two counts are enough to approximate a true sliding
// window: the previous window contributes proportionally to how much of it
// the sliding window still covers.
type bucket struct {
	window int64 // index of the current fixed window, unix-nanos / Window
	counts [2]float64
}

// slide advances the bucket to the window containing now, shifting or
// discarding old counts, and returns the weighted request count visible to
// the sliding window ending at now.
func (b *bucket) slide(now time.Time, window time.Duration) float64 {
	idx := now.UnixNano() / int64(window)
	switch {
	case idx == b.window:
	case idx == b.window+1:
		b.counts[0] = b.counts[1]
		b.counts[1] = 0
		b.window = idx
	default:
		b.counts = [2]float64{}
		b.window = idx
	}

	windowStart := time.Unix(0, b.window*int64(window))
	carry := 1 - float64(now.Sub(windowStart))/float64(window)
	if carry < 0 {
		carry = 0
	}
	return b.counts[0]*carry + b.counts[1]
}

type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// admit decides one request. remaining is clamped at zero; resetAt is the
// end of the current fixed window.
func (l *limiter) admit(key string) (remaining int, resetAt time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{window: now.UnixNano() / int64(l.cfg.Window)}
		l.buckets[key] = b
	}

	seen := b.slide(now, l.cfg.Window)
	resetAt = time.Unix(0, (b.window+1)*int64(l.cfg.Window))

	if seen >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}

	b.counts[1]++
	remaining = int(float64(l.cfg.Max) - seen - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// evictStale drops buckets that have been idle for at least two windows and
// therefore no longer influence any sliding window.
func (l *limiter) evictStale(now time.Time) {
	idx := now.UnixNano() / int64(l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if idx-b.window >= 2 {
			delete(l.buckets, key)
		}
	}
}

// RateLimit enforces a per-key sliding window limit. Rejections get 429 with
// a JSON envelope and a Retry-After header; every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
//
// No eviction goroutine is started; use RateLimitWithCleanup in servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a background goroutine, stopped by
// ctx, that evicts idle keys every two windows.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evictStale(now)
			}
		}
	}()
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := l.admit(l.cfg.KeyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retryAfter := math.Ceil(time.Until(resetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				h.Set("Retry-After", strconv.Itoa(int(retryAfter)))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller's address: first X-Forwarded-For hop, then
// X-Real-IP, then the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
