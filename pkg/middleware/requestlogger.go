package middleware

import (
	"log/slog"
	"net/http"

	"github.com/wangyz12/backend-admin/pkg/logger"
)

// RequestLogger builds a request-scoped logger enriched with correlation_id,
// trace_id and span_id and stores it in context via logger.NewContext.
// Downstream handlers retrieve it with logger.FromContext(ctx). Auth adds
// user_id to the same logger once the bearer token has been accepted.
//
// Mount it after RequestLogging (which sets correlation_id) and Tracing
// (which starts the OpenTelemetry span).
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Identity only ever comes from verified claims, never from headers.
			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
