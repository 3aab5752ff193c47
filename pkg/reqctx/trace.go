package reqctx

import "context"

// TraceInfo mirrors the server span opened by the observability middleware,
// so log lines can be joined with traces.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

func WithTrace(ctx context.Context, trace *TraceInfo) context.Context {
	return context.WithValue(ctx, keyTrace, trace)
}

func TraceIDFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(keyTrace).(*TraceInfo); ok && t != nil {
		return t.TraceID
	}
	return ""
}
