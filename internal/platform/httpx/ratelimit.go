package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitOptions configures per-client request throttling. Requests that
// present a bearer token get the authenticated allowance; everything else
// shares the default allowance per client IP. A non-positive allowance
// disables that tier.
type RateLimitOptions struct {
	PerMinute              int
	AuthenticatedPerMinute int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	opts RateLimitOptions

	mu      sync.Mutex
	clients map[string]*clientBucket
	pruned  time.Time
}

const bucketIdleEviction = 10 * time.Minute

// RateLimitMiddleware throttles requests per client IP using a token
// bucket sized to the per-minute allowance.
func RateLimitMiddleware(opts RateLimitOptions) func(http.Handler) http.Handler {
	rl := &rateLimiter{
		opts:    opts,
		clients: map[string]*clientBucket{},
		pruned:  time.Now(),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, tier := rl.limitFor(r)
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			// One bucket per client and tier so a login does not inherit
			// the anonymous allowance.
			if !rl.allow(clientKey(r)+"|"+tier, limit) {
				w.Header().Set("Retry-After", "60")
				WriteError(r.Context(), w, NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *rateLimiter) limitFor(r *http.Request) (int, string) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return rl.opts.AuthenticatedPerMinute, "auth"
	}
	return rl.opts.PerMinute, "anon"
}

func (rl *rateLimiter) allow(key string, perMinute int) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.pruned) > bucketIdleEviction {
		for k, b := range rl.clients {
			if now.Sub(b.lastSeen) > bucketIdleEviction {
				delete(rl.clients, k)
			}
		}
		rl.pruned = now
	}

	bucket, ok := rl.clients[key]
	if !ok {
		bucket = &clientBucket{
			limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		}
		rl.clients[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}

// clientKey extracts the originating client IP. The first entry of
// X-Forwarded-For wins when a proxy sits in front of the service.
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
