package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/audiopaper-api/internal/api/shared"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
)

// Trace returns middleware that stamps a trace ID on the request context,
// the response headers and a request-scoped logger. Apply it early so that
// every later handler logs with the trace ID.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context(), r.Header.Get(shared.TraceIDHeader))
			traceID := shared.GetTraceID(ctx)

			log := base.With(slog.String("trace_id", traceID))
			ctx = logger.WithLogger(ctx, log)
			w.Header().Set(shared.TraceIDHeader, traceID)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
