package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window and key.
	Max int
	// Window is the length of one window.
	Window time.Duration
	// KeyFunc picks the bucket for a request. Defaults to ClientKey.
	KeyFunc func(*http.Request) string
}

// Decision is the outcome of one Limiter.Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	prev, curr float64
	currStart  time.Time
}

// Limiter approximates a sliding window by weighting the previous fixed
// window's count by how much of it still overlaps the current one.
type Limiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*window
}

// NewLimiter returns a Limiter allowing limit requests per window and key.
func NewLimiter(limit int, every time.Duration) *Limiter {
	return &Limiter{max: limit, window: every, buckets: make(map[string]*window)}
}

// Allow counts a request for key at now.
func (l *Limiter) Allow(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.window)
	b, ok := l.buckets[key]
	switch {
	case !ok:
		b = &window{currStart: start}
		l.buckets[key] = b
	case start.Sub(b.currStart) >= 2*l.window:
		*b = window{currStart: start}
	case start.After(b.currStart):
		b.prev, b.curr, b.currStart = b.curr, 0, start
	}

	overlap := 1 - float64(now.Sub(b.currStart))/float64(l.window)
	effective := b.prev*math.Max(overlap, 0) + b.curr
	d := Decision{ResetAt: b.currStart.Add(l.window)}
	if effective >= float64(l.max) {
		return d
	}
	b.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-effective-1), 0)
	return d
}

// Sweep drops buckets that no longer influence any decision.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.currStart) >= 2*l.window {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit enforces cfg per key, answering 429 with Retry-After once the
// budget is spent. A sweeper evicts stale keys every two windows until ctx
// is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	l := NewLimiter(cfg.Max, cfg.Window)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Sweep(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d := l.Allow(keyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := math.Ceil(max(d.ResetAt.Sub(now), 0).Seconds())
				h.Set("Retry-After", strconv.Itoa(int(retry)))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey buckets shoppers by identity: the X-User-ID header, then
// X-Guest-ID, then the client IP.
func ClientKey(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return "user:" + id
	}
	if id := r.Header.Get("X-Guest-ID"); id != "" {
		return "guest:" + id
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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
