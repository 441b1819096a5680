package server

import (
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers, records request metrics and logs each request.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		// Cache preflight results for a day to reduce OPTIONS traffic
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		start := time.Now()
		next(rw, r)
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, http.StatusText(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
		slog.Debug("request served",
			"method", r.Method, "path", r.URL.Path, "status", rw.statusCode,
			"client", getClientIP(r), "duration", duration)
	}
}

// rateLimitMiddleware rejects requests over the client's limits with 429.
// The declared body size counts against the daily data quota.
func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter == nil || r.Method != http.MethodPost {
			next(w, r)
			return
		}

		client := getClientIP(r)
		err := s.rateLimiter.Allow(client, max(r.ContentLength, 0))
		if err == nil {
			next(w, r)
			return
		}

		var (
			rateErr  *RateLimitError
			quotaErr *QuotaExceededError
		)
		switch {
		case errors.As(err, &rateErr):
			rateLimitHits.WithLabelValues(rateErr.Window).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rateErr.Limit))
		case errors.As(err, &quotaErr):
			rateLimitHits.WithLabelValues(quotaErr.Quota).Inc()
			w.Header().Set("X-Quota-Reset", quotaErr.Resets.Format(time.RFC3339))
		}
		slog.Warn("Request rate limited", "client", client, "path", r.URL.Path, "error", err)
		s.writeErrorResponse(w, err.Error(), http.StatusTooManyRequests)
	}
}

// getClientIP extracts the client IP address from the request.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
