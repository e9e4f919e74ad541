package ingest

import (
	"log/slog"
	"net/http"
	"time"

	"flock-sentinel/internal/config"
	"flock-sentinel/internal/logging"
)

// WithMiddleware wraps the handler with recovery, security headers, request
// logging, API key authentication when enabled and rate limiting when limiter
// is non-nil.
func WithMiddleware(handler http.Handler, cfg *config.Config, limiter *RateLimiter) http.Handler {
	// Apply middleware in reverse order (last applied runs first)
	h := handler

	h = recoveryMiddleware(h)

	h = securityHeadersMiddleware(h)

	if cfg.Auth.Enabled {
		h = authMiddleware(h, cfg.Auth)
	}

	if limiter != nil {
		h = rateLimitMiddleware(h, limiter)
	}

	h = loggingMiddleware(h)

	return h
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// authMiddleware checks for valid API key.
func authMiddleware(next http.Handler, authCfg config.AuthConfig) http.Handler {
	validKeys := make(map[string]bool)
	for _, key := range authCfg.APIKeys {
		validKeys[key] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health and metrics endpoints
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(authCfg.APIKeyHeader)
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, "missing API key", "")
			return
		}
		if !validKeys[apiKey] {
			slog.Warn("rejected API key",
				"path", r.URL.Path,
				"key", logging.MaskAPIKey(apiKey),
			)
			respondError(w, http.StatusUnauthorized, "invalid API key", "")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware sets the response headers appropriate for a JSON
// API that is never rendered by a browser.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered", "error", err, "path", r.URL.Path)
				respondError(w, http.StatusInternalServerError, "internal server error", "")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
