// Package logging constructs the gateway's single structured logger,
// bridged into OpenTelemetry so log records emitted during a traced RPC
// call carry trace/span IDs.
package logging

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

func New(serviceName string) *slog.Logger {
	otelHandler := otelslog.NewHandler(serviceName)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(fanoutHandler{primary: jsonHandler, otel: otelHandler})
}

// fanoutHandler writes every record to stdout as JSON (for operator
// tailing) and to the otel bridge (for trace-correlated log export),
// since slog has no built-in multi-handler.
type fanoutHandler struct {
	primary slog.Handler
	otel    slog.Handler
}

func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.otel.Enabled(ctx, level)
}

func (h fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	if h.otel.Enabled(ctx, r.Level) {
		if err := h.otel.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanoutHandler{primary: h.primary.WithAttrs(attrs), otel: h.otel.WithAttrs(attrs)}
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	return fanoutHandler{primary: h.primary.WithGroup(name), otel: h.otel.WithGroup(name)}
}
