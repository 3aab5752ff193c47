package logs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/echohealth/echo_backend/pkg/reqctx"
)

// multiHandler fans every record out to all handlers that accept its level.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

// contextHandler adds request-scoped attributes from reqctx.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if rid := reqctx.RequestIDFromContext(ctx); rid != "" {
			r.AddAttrs(slog.String("request_id", rid))
		}
		if tid := reqctx.TraceIDFromContext(ctx); tid != "" {
			r.AddAttrs(slog.String("trace_id", tid))
		}
		if uid, ok := reqctx.UserIDFromContext(ctx); ok {
			r.AddAttrs(slog.String("user_id", uid.String()), slog.String("role", reqctx.RoleFromContext(ctx)))
		}
		if s, ok := reqctx.SubjectFromContext(ctx); ok {
			r.AddAttrs(slog.String(string(s.Kind)+"_id", s.ID.String()))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
