package middleware

import (
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/wangyz12/backend-admin/pkg/logger"
)

// CorrelationHeader carries the request's correlation ID in and out.
const CorrelationHeader = "X-Correlation-ID"

// An inbound correlation ID is echoed into headers and every log line, so
// only short tokens of safe characters are accepted.
var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

func correlationID(r *http.Request) string {
	if id := r.Header.Get(CorrelationHeader); correlationIDPattern.MatchString(id) {
		return id
	}
	return uuid.NewString()
}

// accessLogLevel picks the access-log level: server errors at error,
// health checks and scrapes at debug, everything else at info.
func accessLogLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case isHousekeeping(path):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// RequestLogging assigns the correlation ID and writes one access-log line
// per request. The line names the chi route, so tokens or IDs in the path
// are never the only way to group requests.
func RequestLogging(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := correlationID(r)
			ctx := logger.WithCorrelationID(r.Context(), id)
			r = r.WithContext(ctx)
			w.Header().Set(CorrelationHeader, id)

			rec := recordResponse(w)
			next.ServeHTTP(rec, r)

			l.LogAttrs(ctx, accessLogLevel(r.URL.Path, rec.status), "http request",
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", rec.bytes),
				slog.String("client_ip", clientIP(r)),
				slog.String("user_agent", r.UserAgent()),
				slog.String("correlation_id", id),
			)
		})
	}
}
