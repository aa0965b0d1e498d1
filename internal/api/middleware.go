package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/metrics"
)

// NewLoggingMiddleware creates a middleware that logs every request and,
// when metrics are enabled, records request counters and durations.
func NewLoggingMiddleware(logger zerolog.Logger, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				elapsed := time.Since(start)
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", elapsed).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("HTTP request")
				if m != nil {
					m.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), elapsed.Seconds())
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
