package mosaic

import (
	"context"
	"log/slog"
)

type loggerCtxKey struct{}

// LoggingContext returns a copy of ctx carrying the passed *slog.Logger. All
// the non-fatal events in a load or build (expression failures, cycle
// suppression, missing handlers, script errors) are reported through the
// logger in the context; when no logger has been attached, they are silently
// discarded.
func LoggingContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

func logger(ctx context.Context) *slog.Logger {
	val := ctx.Value(loggerCtxKey{})
	if val == nil {
		return slog.New(discardHandler{})
	}
	res, ok := val.(*slog.Logger)
	if !ok {
		return slog.New(discardHandler{})
	}
	return res
}

type discardHandler struct{}

func (discardHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return false
}

func (discardHandler) Handle(_ context.Context, _ slog.Record) error {
	return nil
}

func (d discardHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return d
}

func (d discardHandler) WithGroup(_ string) slog.Handler {
	return d
}
