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

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Max requests per Window and key.
	Max    int
	Window time.Duration
	// KeyFunc picks the bucket of a request. Defaults to OperatorOrIP.
	KeyFunc func(*http.Request) string
}

// window holds the counts of the current and the previous fixed windows. The
// sliding estimate weighs the previous count by how much of it still overlaps.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// Limiter is a per-key sliding window counter.
type Limiter struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*window
}

// NewLimiter allows limit hits per period and key.
func NewLimiter(limit int, period time.Duration) *Limiter {
	return &Limiter{
		max:     limit,
		period:  period,
		now:     time.Now,
		buckets: make(map[string]*window),
	}
}

// Allow records a hit for key when it fits. It returns how many hits are left
// and when the current window ends.
func (l *Limiter) Allow(key string) (left int, reset time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.buckets[key]
	if w == nil {
		w = &window{start: now.Truncate(l.period)}
		l.buckets[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.period:
		*w = window{start: now.Truncate(l.period)}
	case elapsed >= l.period:
		*w = window{start: w.start.Add(l.period), prev: w.curr}
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.period)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.period)
	if used >= float64(l.max) {
		return 0, reset, false
	}
	w.curr++
	return max(int(float64(l.max)-used-1), 0), reset, true
}

// Prune drops buckets idle for two periods.
func (l *Limiter) Prune() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.buckets {
		if now.Sub(w.start) >= 2*l.period {
			delete(l.buckets, k)
		}
	}
}

// Run prunes l every two periods until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	t := time.NewTicker(2 * l.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Prune()
		}
	}
}

// RateLimit rejects requests over the limit with 429. Every response carries
// the X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return RateLimitWith(NewLimiter(cfg.Max, cfg.Window), cfg.KeyFunc)
}

// RateLimitWith is RateLimit over an existing limiter, so its pruning loop
// can be run by the caller.
func RateLimitWith(l *Limiter, keyFunc func(*http.Request) string) Middleware {
	if keyFunc == nil {
		keyFunc = OperatorOrIP
	}
	limit := strconv.Itoa(l.max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			left, reset, ok := l.Allow(keyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(reset.Sub(l.now()), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OperatorOrIP buckets requests by a digest of the api_key header, so each
// terminal gets its own budget, and by client IP when no key is sent.
func OperatorOrIP(r *http.Request) string {
	if key := r.Header.Get("api_key"); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the host of
// RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
