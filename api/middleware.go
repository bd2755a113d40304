package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/vocdoni/ticketvote/log"
)

// DisabledLogging is a global flag to disable logging middleware
var DisabledLogging = false

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	ExcludedPrefixes []string // URL path prefixes to exclude from logging
}

// DefaultLoggingConfig returns the LoggingConfig used by the API.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		ExcludedPrefixes: LogExcludedPrefixes,
	}
}

// shouldSkipLogging checks if the request should be skipped from logging
func (lc LoggingConfig) shouldSkipLogging(r *http.Request) bool {
	if log.Level() != log.LogLevelDebug || DisabledLogging {
		return true
	}
	for _, prefix := range lc.ExcludedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// loggingMiddleware logs requests at debug level. Bodies are never logged:
// they carry credentials and ballots.
func loggingMiddleware(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.shouldSkipLogging(r) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w}
			log.Debugw("api request",
				"method", r.Method,
				"url", r.URL.String(),
				"bytes", r.ContentLength,
			)
			next.ServeHTTP(wrapped, r)
			log.Debugw("api response",
				"method", r.Method,
				"url", r.URL.String(),
				"status", wrapped.statusCode,
				"bytes", wrapped.written,
				"took", time.Since(start).String(),
			)
		})
	}
}

// adminAuth requires the bearer token to match token.
func adminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				ErrUnauthorized.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
