// Package logger builds the gamecredit slog logger and carries the request-scoped
// copy through context.Context, so services log with request_id and caller attrs.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Service is stamped on every record.
const Service = "gamecredit-api"

// New returns the process logger: JSON on stdout, debug level for local and dev.
func New(appEnv string) *slog.Logger {
	return NewWriter(os.Stdout, appEnv)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", Service, "env", appEnv)
}

type ctxKey struct{}

func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger carried by ctx, or slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Enrich adds args to the logger carried by ctx. The auth middleware uses it to
// tag every later line of a request with the caller's user, client and role.
func Enrich(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	return With(ctx, From(ctx).With(args...))
}
