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

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-key token bucket limiter.
type RateLimitConfig struct {
	// Max is the burst size and the number of requests refilled per Window.
	Max int
	// Window is the refill period of Max requests.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. The client IP is
	// used when nil or when it returns an empty key.
	KeyFunc func(*http.Request) string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	cfg      RateLimitConfig
	every    time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &rateLimiter{
		cfg:      cfg,
		every:    cfg.Window / time.Duration(cfg.Max),
		visitors: make(map[string]*visitor),
	}
}

func (rl *rateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.every), rl.cfg.Max)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// allow consumes a token for key. resetAt is when the next token becomes
// available.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	l := rl.get(key, now)
	allowed = l.AllowN(now, 1)

	tokens := l.TokensAt(now)
	remaining = max(int(math.Floor(tokens)), 0)
	resetAt = now
	if tokens < 1 {
		resetAt = now.Add(time.Duration((1 - tokens) * float64(rl.every)))
	}
	return remaining, resetAt, allowed
}

// cleanup drops limiters idle for longer than a full refill.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= rl.cfg.Window {
			delete(rl.visitors, key)
		}
	}
}

func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now)
			}
		}
	}()
}

// RateLimit returns a middleware that answers 429 with a JSON error body once
// a key exhausts its bucket. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newRateLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit with idle keys evicted until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startCleanup(ctx)
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if rl.cfg.KeyFunc != nil {
				key = rl.cfg.KeyFunc(r)
			}
			if key == "" {
				key = ClientIP(r)
			}
			now := time.Now()
			remaining, resetAt, allowed := rl.allow(key, now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				wait := max(resetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
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

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host, in that order.
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
