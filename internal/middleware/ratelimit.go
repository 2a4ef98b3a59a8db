package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const sweepEvery = 5 * time.Minute

// Limit is a request budget per client per fixed window
type Limit struct {
	Requests int
	Window   time.Duration
}

var (
	UpgradeLimit = Limit{Requests: 20, Window: time.Minute}
	StatusLimit  = Limit{Requests: 120, Window: time.Minute}
)

type window struct {
	used   int
	resets time.Time
}

// Limiter counts requests per key in fixed windows. Windows that have
// expired are dropped by a background sweep until Close.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewLimiter() *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if now.After(w.resets) {
			delete(l.windows, key)
		}
	}
}

// take spends one request from key's budget. It returns whether the request
// fits, how many are left and when the window resets.
func (l *Limiter) take(key string, lim Limit) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resets) {
		w = &window{resets: now.Add(lim.Window)}
		l.windows[key] = w
	}
	if w.used >= lim.Requests {
		return false, 0, w.resets
	}
	w.used++
	return true, lim.Requests - w.used, w.resets
}

// PerIP limits requests by client address
func (l *Limiter) PerIP(lim Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, left, resets := l.take(ClientIP(r), lim)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(lim.Requests))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
			h.Set("X-RateLimit-Reset", resets.Format(time.RFC3339))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			wait := int(resets.Sub(l.now()).Seconds())
			if wait < 1 {
				wait = 1
			}
			h.Set("Retry-After", strconv.Itoa(wait))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":      "too many requests",
				"retryAfter": wait,
			})
		})
	}
}

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the peer address
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
