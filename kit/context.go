// CLAUDE:SUMMARY Request-scoped values shared by the HTTP, MCP and CLI entry points: transport, request ID, trace ID.
package kit

import "context"

// Transport names the entry point a feed request came through.
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportMCP  Transport = "mcp"
	TransportCLI  Transport = "cli"
)

type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
	traceIDKey
)

func WithTransport(ctx context.Context, t Transport) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to TransportHTTP.
func GetTransport(ctx context.Context) Transport {
	if v, ok := ctx.Value(transportKey).(Transport); ok {
		return v
	}
	return TransportHTTP
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// LogAttrs returns the request-scoped values as slog key/value pairs.
// Empty IDs are omitted.
func LogAttrs(ctx context.Context) []any {
	attrs := []any{"transport", string(GetTransport(ctx))}
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if id := GetTraceID(ctx); id != "" {
		attrs = append(attrs, "trace_id", id)
	}
	return attrs
}
