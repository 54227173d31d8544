// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and propagates a
// per-bar evaluation ID through context.Context so one bar's log lines
// across runner, sources and stores can be correlated.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type ctxKey string

const evalIDKey ctxKey = "eval_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithEvalID stores an evaluation ID in the context for downstream propagation.
func WithEvalID(ctx context.Context, evalID string) context.Context {
	return context.WithValue(ctx, evalIDKey, evalID)
}

// EvalID extracts the evaluation ID from context. Returns "" if not set.
func EvalID(ctx context.Context) string {
	if v, ok := ctx.Value(evalIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateEvalID creates an evaluation ID from a pair and the bar close time.
// Format: "{pair}-{unixNano}" — lightweight, no UUID dependency.
func GenerateEvalID(pair string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", pair, ts.UnixNano())
}

// LogWithEval returns slog attributes including the evaluation ID from context.
// Usage: slog.Info("msg", logger.LogWithEval(ctx)...)
func LogWithEval(ctx context.Context) []any {
	id := EvalID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("eval_id", id)}
}
