package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig sizes the per-client token bucket guarding the expensive
// surfaces (diagnostic queries, collaborator chat).
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained refill rate per client.
	RequestsPerSecond float64
	// Burst is the bucket capacity.
	Burst int
}

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleEviction  = 10 * time.Minute
)

// limiterTable holds one token bucket per client address and evicts buckets
// idle longer than limiterIdleEviction.
type limiterTable struct {
	cfg     RateLimitConfig
	clients sync.Map // client address -> *tableEntry
}

type tableEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (t *limiterTable) get(addr string) *rate.Limiter {
	if v, ok := t.clients.Load(addr); ok {
		entry := v.(*tableEntry)
		entry.lastSeen = time.Now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst)
	t.clients.Store(addr, &tableEntry{limiter: limiter, lastSeen: time.Now()})
	return limiter
}

func (t *limiterTable) sweep() {
	for {
		time.Sleep(limiterSweepInterval)
		t.clients.Range(func(key, value any) bool {
			if time.Since(value.(*tableEntry).lastSeen) > limiterIdleEviction {
				t.clients.Delete(key)
			}
			return true
		})
	}
}

// RateLimiter enforces a per-client token-bucket limit, answering 429 with
// the engine's error body shape when the bucket is empty. Clients are keyed
// by RemoteAddr only; X-Forwarded-For is spoofable and ignored.
func RateLimiter(cfg RateLimitConfig) func(http.Handler) http.Handler {
	table := &limiterTable{cfg: cfg}
	go table.sweep()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := table.get(clientAddr(r))

			reservation := limiter.Reserve()
			if !reservation.OK() {
				rejectRateLimited(w, 0)
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				// Granting now would exceed the rate; give the tokens back
				// and tell the client when to retry.
				reservation.Cancel()
				rejectRateLimited(w, int(delay.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rejectRateLimited(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusTooManyRequests,
		"message": "rate limit exceeded",
	})
}
