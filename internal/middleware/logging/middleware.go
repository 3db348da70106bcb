// Package logging provides HTTP middleware for structured request logging.
package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/smartpcr/pass-cancel/internal/errors"
	intlogging "github.com/smartpcr/pass-cancel/internal/logging"
	"github.com/smartpcr/pass-cancel/internal/middleware/request"
)

// WithRequestLogging logs each request with its duration, status and outcome
// class. Cancelled requests are logged at info with outcome "cancelled"
// rather than as errors; a dropped connection is an expected end state here.
func WithRequestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := intlogging.NewLogResponseWriter(w)

			next.ServeHTTP(lw, r)

			status := lw.StatusCode()
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"outcome", outcomeClass(status),
				"duration_ms", time.Since(start).Milliseconds(),
				"size", lw.Size(),
				"request_id", request.ID(r),
				"remote_addr", r.RemoteAddr,
			}

			switch {
			case status >= 500:
				logger.Error("request failed", attrs...)
			case status >= 400 && status != errors.StatusClientClosedRequest:
				logger.Warn("request rejected", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}
		})
	}
}

// outcomeClass maps a response status to the outcome taxonomy used across
// logs and metrics.
func outcomeClass(status int) string {
	switch {
	case status == errors.StatusClientClosedRequest:
		return "cancelled"
	case status == http.StatusGatewayTimeout:
		return "timed_out"
	case status >= 200 && status < 400:
		return "completed"
	default:
		return "failed"
	}
}
