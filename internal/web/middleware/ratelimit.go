package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/sanandem/internal/logging"
	"github.com/JonMunkholm/sanandem/internal/ratelimit"
)

// RejectObserver is told the name of a limiter each time it rejects a request.
type RejectObserver func(limiter string)

// RateLimit gates requests matching method and path exactly with a fixed
// window limiter keyed by client IP and advertises the limit in
// X-RateLimit-Limit. Other requests pass untouched.
func RateLimit(name string, limiter *ratelimit.FixedWindow, method, path string, observe RejectObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method || r.URL.Path != path {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			ip := ClientIP(r)
			if !limiter.Allow(ip) {
				logging.FromContext(r.Context()).Warn("rate limit exceeded",
					"limiter", name,
					"ip", ip,
				)
				if observe != nil {
					observe(name)
				}
				tooManyRequests(w, limiter.RetryAfter(ip))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const throttleIdle = 10 * time.Minute

// Throttle is a general per-IP token bucket allowing perMinute requests with
// bursts of the same size.
type Throttle struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	observe   RejectObserver
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle creates a throttle. perMinute <= 0 disables it.
func NewThrottle(perMinute int, observe RejectObserver) *Throttle {
	t := &Throttle{
		visitors:  make(map[string]*visitor),
		burst:     perMinute,
		lastSweep: time.Now(),
		observe:   observe,
	}
	if perMinute > 0 {
		t.limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return t
}

// reserve returns zero when the request may proceed, else the wait.
func (t *Throttle) reserve(ip string, now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) > throttleIdle {
		for key, v := range t.visitors {
			if now.Sub(v.lastSeen) > throttleIdle {
				delete(t.visitors, key)
			}
		}
		t.lastSweep = now
	}

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay
	}
	return 0
}

// Middleware returns the throttling handler.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	if t.burst <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait := t.reserve(ClientIP(r), time.Now()); wait > 0 {
			if t.observe != nil {
				t.observe("general")
			}
			tooManyRequests(w, wait)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte("Too Many Requests"))
}
