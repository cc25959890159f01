package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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
	Max    int
	Window time.Duration
	// KeyFunc picks the bucket for a request. Defaults to SessionOrIP.
	KeyFunc func(*http.Request) string
}

// window counts requests in the current and previous fixed windows. The
// effective count weights the previous window by its remaining overlap.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max    int
	size   time.Duration
	key    func(*http.Request) string
	now    func() time.Time
	mu     sync.Mutex
	bucket map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.KeyFunc
	if key == nil {
		key = SessionOrIP
	}
	return &limiter{
		max:    cfg.Max,
		size:   cfg.Window,
		key:    key,
		now:    time.Now,
		bucket: make(map[string]*window),
	}
}

func (l *limiter) take(key string) (remaining int, reset time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.bucket[key]
	if !found {
		w = &window{start: now.Truncate(l.size)}
		l.bucket[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.size:
		w.start, w.prev, w.curr = now.Truncate(l.size), 0, 0
	case elapsed >= l.size:
		w.start, w.prev, w.curr = w.start.Add(l.size), w.curr, 0
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.size)
	effective := w.prev*max(overlap, 0) + w.curr
	reset = w.start.Add(l.size)
	if effective >= float64(l.max) {
		return 0, reset, false
	}
	w.curr++
	return max(int(float64(l.max)-effective-1), 0), reset, true
}

func (l *limiter) evict() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.bucket {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.bucket, k)
		}
	}
}

// RateLimit limits requests per key and sets the X-RateLimit-* headers.
// Rejected requests get 429 with a Retry-After header.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle keys
// every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		t := time.NewTicker(2 * l.size)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.evict()
			}
		}
	}()
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := l.take(l.key(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(reset.Sub(l.now()), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionOrIP buckets authenticated callers by a digest of their bearer token
// so customers behind one NAT do not share a budget. Anonymous callers are
// bucketed by client IP.
func SessionOrIP(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && tok != "" {
		sum := sha256.Sum256([]byte(tok))
		return "s:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
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
