package reqctx

import "context"

type ctxKey int

const (
	keyRequestMeta ctxKey = iota
	keyClaims
	keyTrace
	keySubject
)

// RequestMeta is set by the request id middleware on every HTTP request.
type RequestMeta struct {
	RequestID string
	ClientIP  string
}

func WithRequestMeta(ctx context.Context, meta *RequestMeta) context.Context {
	return context.WithValue(ctx, keyRequestMeta, meta)
}

func requestMeta(ctx context.Context) *RequestMeta {
	meta, _ := ctx.Value(keyRequestMeta).(*RequestMeta)
	return meta
}

// RequestIDFromContext returns "" outside an HTTP request.
func RequestIDFromContext(ctx context.Context) string {
	if meta := requestMeta(ctx); meta != nil {
		return meta.RequestID
	}
	return ""
}

func ClientIPFromContext(ctx context.Context) string {
	if meta := requestMeta(ctx); meta != nil {
		return meta.ClientIP
	}
	return ""
}
