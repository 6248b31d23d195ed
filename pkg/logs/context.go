package logs

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Alijeyrad/teleconsult/pkg/reqctx"
)

// contextHandler adds request and trace identifiers found in ctx to every
// record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if meta, ok := reqctx.RequestMetaFromContext(ctx); ok {
		r.AddAttrs(slog.String("request_id", meta.RequestID))
		if meta.Actor != "" {
			r.AddAttrs(slog.String("actor", meta.Actor))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
