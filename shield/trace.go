package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/fulltext/idgen"
	"github.com/hazyhaar/fulltext/kit"
)

// TraceID stamps each request with a trace ID and a request ID, exposes the
// trace ID as X-Trace-ID, and stores a per-request logger under LoggerKey.
// An inbound X-Request-ID is kept when present.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := idgen.Trace()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Request()
		}

		ctx := kit.WithTraceID(r.Context(), traceID)
		ctx = kit.WithRequestID(ctx, requestID)
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Info("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
