package ingest

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"flock-sentinel/internal/config"
)

// RateLimiter is a fixed-window limiter keyed by client address. One
// instance meters HTTP requests; a second, built with NewObservationLimiter,
// meters observations so a large batch costs as much as many small ones.
type RateLimiter struct {
	cfg         config.RateLimitConfig
	limit       int64
	clients     map[string]*clientState
	mu          sync.RWMutex
	exemptPaths map[string]bool
	stopCleanup chan struct{}
	stopOnce    sync.Once
	now         func() time.Time

	allowed atomic.Uint64
	limited atomic.Uint64
}

// clientState tracks usage for a single client.
type clientState struct {
	count     int64     // Units charged in the current window
	windowEnd time.Time // When current window expires
	mu        sync.Mutex
}

// NewRateLimiter creates a limiter of RequestsPerIP+BurstSize requests per
// window.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return newRateLimiter(cfg, int64(cfg.RequestsPerIP+cfg.BurstSize))
}

// NewObservationLimiter creates a limiter of ObservationsPerIP observations
// per window.
func NewObservationLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return newRateLimiter(cfg, int64(cfg.ObservationsPerIP))
}

func newRateLimiter(cfg config.RateLimitConfig, limit int64) *RateLimiter {
	exemptPaths := make(map[string]bool)
	for _, path := range cfg.ExemptPaths {
		exemptPaths[path] = true
	}

	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = time.Minute
	}

	rl := &RateLimiter{
		cfg:         cfg,
		limit:       limit,
		clients:     make(map[string]*clientState),
		exemptPaths: exemptPaths,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}

	go rl.cleanupLoop()

	return rl
}

// Limit returns the units allowed per client per window.
func (rl *RateLimiter) Limit() int {
	return int(rl.limit)
}

// Allow charges one unit to key. It returns whether the unit was allowed,
// the units left in the window and when the window resets.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	return rl.AllowN(key, 1)
}

// AllowN charges n units to key, all or nothing. A refused charge leaves
// the client's usage unchanged, so a smaller batch may still fit.
func (rl *RateLimiter) AllowN(key string, n int) (bool, int, time.Time) {
	now := rl.now()

	rl.mu.Lock()
	client, exists := rl.clients[key]
	if !exists {
		client = &clientState{windowEnd: now.Add(rl.cfg.WindowSize)}
		rl.clients[key] = client
	}
	rl.mu.Unlock()

	client.mu.Lock()
	defer client.mu.Unlock()

	if now.After(client.windowEnd) {
		client.count = 0
		client.windowEnd = now.Add(rl.cfg.WindowSize)
	}

	if client.count+int64(n) > rl.limit {
		rl.limited.Add(1)
		return false, int(max(rl.limit-client.count, 0)), client.windowEnd
	}

	client.count += int64(n)
	rl.allowed.Add(1)
	return true, int(rl.limit - client.count), client.windowEnd
}

// cleanupLoop periodically removes expired client entries.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup removes expired entries.
func (rl *RateLimiter) cleanup() {
	now := rl.now()
	expiredThreshold := now.Add(-rl.cfg.WindowSize * 2) // Keep entries for 2 windows

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, client := range rl.clients {
		client.mu.Lock()
		if client.windowEnd.Before(expiredThreshold) {
			delete(rl.clients, key)
			removed++
		}
		client.mu.Unlock()
	}

	if removed > 0 {
		slog.Debug("rate limiter cleanup", "removed", removed, "remaining", len(rl.clients))
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// IsExempt checks if a path is exempt from rate limiting.
func (rl *RateLimiter) IsExempt(path string) bool {
	return rl.exemptPaths[path]
}

// Stats returns current rate limiter statistics.
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	var charged int64
	for _, client := range rl.clients {
		client.mu.Lock()
		charged += client.count
		client.mu.Unlock()
	}

	return RateLimiterStats{
		TrackedClients: len(rl.clients),
		Charged:        charged,
		Allowed:        rl.allowed.Load(),
		Limited:        rl.limited.Load(),
	}
}

// RateLimiterStats holds rate limiter statistics. Allowed and Limited count
// charges, Charged counts units in the current windows.
type RateLimiterStats struct {
	TrackedClients int    `json:"tracked_clients"`
	Charged        int64  `json:"charged"`
	Allowed        uint64 `json:"allowed"`
	Limited        uint64 `json:"limited"`
}

// rateLimitMiddleware applies rate limiting based on client IP.
func rateLimitMiddleware(next http.Handler, limiter *RateLimiter) http.Handler {
	cfg := limiter.cfg

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check exempt paths
		if limiter.IsExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Get client IP
		ip := getClientIP(r, cfg.TrustProxy)

		// Check rate limit
		allowed, remaining, resetTime := limiter.Allow(ip)

		setLimitHeaders(w, limiter.Limit(), remaining, resetTime)

		if !allowed {
			slog.Warn("rate limit exceeded",
				"ip", ip,
				"path", r.URL.Path,
				"method", r.Method,
			)
			respondTooMany(w, "too many requests", limiter.now(), resetTime)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setLimitHeaders(w http.ResponseWriter, limit, remaining int, reset time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

func respondTooMany(w http.ResponseWriter, msg string, now, reset time.Time) {
	retry := int(reset.Sub(now).Seconds()) + 1
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"success":false,"error":%q,"retry_after":%d}`, msg, retry)
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request, trustProxy bool) string {
	// If we trust the proxy, check X-Forwarded-For
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// X-Forwarded-For may contain multiple IPs, take the first
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}

		// Also check X-Real-IP
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	// Fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

