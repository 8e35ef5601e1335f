// Package ratelimit limits mutating API calls per client address.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds rate limiter configuration. Zero fields take DefaultConfig
// values.
type Config struct {
	RequestsPerMinute int
	// Window is the counting window; requests are allowed
	// RequestsPerMinute times per minute of window.
	Window          time.Duration
	CleanupInterval time.Duration
	// IdleTTL drops clients with no requests for this long.
	IdleTTL time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Window:            time.Minute,
		CleanupInterval:   5 * time.Minute,
		IdleTTL:           10 * time.Minute,
	}
}

// Limiter counts requests per client in fixed windows. A window opens on a
// client's first request and is not extended by later traffic.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	limit   int
	span    time.Duration
	idleTTL time.Duration

	rejected atomic.Int64
	tracked  atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	start time.Time
	last  time.Time
	count int
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	TotalHits   int64 // rejected requests
	ClientCount int64
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}

	limit := int(math.Ceil(float64(cfg.RequestsPerMinute) * cfg.Window.Minutes()))
	if limit < 1 {
		limit = 1
	}

	rl := &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
		limit:   limit,
		span:    cfg.Window,
		idleTTL: cfg.IdleTTL,
		stop:    make(chan struct{}),
	}
	go rl.sweep(cfg.CleanupInterval)
	return rl
}

// Allow records a request from key and reports whether it is within the
// limit.
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.span {
		rl.windows[key] = &window{start: now, last: now, count: 1}
		rl.tracked.Store(int64(len(rl.windows)))
		return true
	}

	w.count++
	w.last = now
	if w.count > rl.limit {
		rl.rejected.Add(1)
		return false
	}
	return true
}

// RetryAfter returns how long key must wait for a new window.
func (rl *Limiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok {
		return 0
	}
	return max(rl.span-rl.now().Sub(w.start), 0)
}

func (rl *Limiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stop:
			return
		}
	}
}

// cleanupStaleEntries forgets clients idle for longer than IdleTTL.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	for key, w := range rl.windows {
		if w.last.Before(cutoff) {
			delete(rl.windows, key)
		}
	}
	rl.tracked.Store(int64(len(rl.windows)))
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   rl.rejected.Load(),
		ClientCount: rl.tracked.Load(),
	}
}

// Middleware limits requests by the key extractIP returns. Requests for which
// skip returns true bypass the limiter. onLimit writes the rejection; nil
// selects a plain 429.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, skip func(*http.Request) bool, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip != nil && skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			key := extractIP(r)
			if rl.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter(key).Seconds())+1))
			onLimit(w, r)
		})
	}
}

// SafeMethods skips GET, HEAD and OPTIONS.
func SafeMethods(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
