package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/albapepper/vakit/internal/api/respond"
)

// --------------------------------------------------------------------------
// Handler latency
// --------------------------------------------------------------------------

// TimingMiddleware reports handler latency in X-Process-Time. Timings
// lookups that miss the cache show up here as provider round trips.
func TimingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&latencyWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}

// latencyWriter sets X-Process-Time when the status line is written, the
// last point a header can still change.
type latencyWriter struct {
	http.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *latencyWriter) WriteHeader(code int) {
	if !w.stamped {
		w.stamped = true
		ms := float64(time.Since(w.start).Microseconds()) / 1000.0
		w.Header().Set("X-Process-Time", fmt.Sprintf("%.2fms", ms))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *latencyWriter) Write(b []byte) (int, error) {
	if !w.stamped {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *latencyWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// --------------------------------------------------------------------------
// Per-client throttling
// --------------------------------------------------------------------------

// clientLimiter keeps one token bucket per remote host so a widget polling
// /api/v1/next cannot starve other clients of the status server.
type clientLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
	every      rate.Limit
	burst      int
	retryAfter string
}

func newClientLimiter(requestsPerWindow int, window time.Duration) *clientLimiter {
	burst := max(requestsPerWindow/2, 1)
	return &clientLimiter{
		buckets:    make(map[string]*rate.Limiter),
		every:      rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:      burst,
		retryAfter: strconv.Itoa(int(math.Ceil(window.Seconds()))),
	}
}

func (l *clientLimiter) forClient(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[host]
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets[host] = b
	}
	return b
}

// RateLimitMiddleware allows requestsPerWindow requests per window for each
// remote host, with a burst of half that. Rejected requests get 429 and a
// Retry-After of one window.
func RateLimitMiddleware(requestsPerWindow int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newClientLimiter(requestsPerWindow, window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil || host == "" {
				host = r.RemoteAddr
			}
			if !limiter.forClient(host).Allow() {
				w.Header().Set("Retry-After", limiter.retryAfter)
				respond.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down polling")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
