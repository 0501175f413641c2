package shield

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimit allows MaxRequests per Window for one client IP.
type RateLimit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter enforces fixed-window per-IP limits keyed by "METHOD /path".
// Requests without a rule are not limited.
type RateLimiter struct {
	rules          map[string]RateLimit
	trustForwarded bool
	buckets        sync.Map // ip + " " + endpoint -> *bucket
	now            func() time.Time
}

// NewRateLimiter creates a limiter. Rules with a non-positive limit or
// window are ignored. trustForwarded keys clients by X-Forwarded-For and
// must only be set behind a reverse proxy that appends to that header.
func NewRateLimiter(rules map[string]RateLimit, trustForwarded bool) *RateLimiter {
	rl := &RateLimiter{rules: make(map[string]RateLimit), trustForwarded: trustForwarded, now: time.Now}
	for endpoint, r := range rules {
		if r.MaxRequests > 0 && r.Window > 0 {
			rl.rules[endpoint] = r
		}
	}
	return rl
}

// StartGC drops expired buckets every interval until ctx is done.
func (rl *RateLimiter) StartGC(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// allow reports whether the request may proceed and, if not, how long until
// the window resets.
func (rl *RateLimiter) allow(ip, endpoint string) (bool, time.Duration) {
	rule, ok := rl.rules[endpoint]
	if !ok {
		return true, 0
	}

	now := rl.now()
	v, _ := rl.buckets.LoadOrStore(ip+" "+endpoint, &bucket{resetAt: now.Add(rule.Window)})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(rule.Window)
	}
	b.count++
	if b.count > rule.MaxRequests {
		return false, b.resetAt.Sub(now)
	}
	return true, 0
}

// Middleware answers 429 with a JSON error once a client exceeds its limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + r.URL.Path
		ip := ExtractIP(r, rl.trustForwarded)

		ok, retry := rl.allow(ip, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip, "endpoint", endpoint)
		secs := int(retry.Seconds() + 0.999)
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client address: the RemoteAddr host, or with
// trustForwarded the last X-Forwarded-For hop. Earlier hops are set by the
// client and are never used.
func ExtractIP(r *http.Request, trustForwarded bool) string {
	if xff := r.Header.Get("X-Forwarded-For"); trustForwarded && xff != "" {
		hop := strings.TrimSpace(xff[strings.LastIndex(xff, ",")+1:])
		if hop != "" {
			return hop
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
