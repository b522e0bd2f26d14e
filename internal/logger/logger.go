// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and provides
// batch ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const batchIDKey ctxKey = "batch_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination; CLIs log to stderr so
// stdout stays machine readable.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps "debug", "info", "warn", "error" to a slog level. Unknown
// values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithBatchID stores a batch ID in the context for downstream propagation.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDKey, batchID)
}

// BatchID extracts the batch ID from context. Returns "" if not set.
func BatchID(ctx context.Context) string {
	if v, ok := ctx.Value(batchIDKey).(string); ok {
		return v
	}
	return ""
}

// NewBatchID returns a fresh batch identifier prefixed with the broker name.
func NewBatchID(broker string) string {
	return fmt.Sprintf("%s-%s", broker, uuid.NewString())
}

// LogWithBatch returns slog attributes including the batch ID from context.
// Usage: slog.Info("msg", logger.LogWithBatch(ctx)...)
func LogWithBatch(ctx context.Context) []any {
	bid := BatchID(ctx)
	if bid == "" {
		return nil
	}
	return []any{slog.String("batch_id", bid)}
}

// RestyLogger adapts a slog.Logger to resty's Errorf/Warnf/Debugf interface.
type RestyLogger struct {
	l *slog.Logger
}

// Resty wraps l for use with resty.Client.SetLogger.
func Resty(l *slog.Logger) *RestyLogger {
	if l == nil {
		l = slog.Default()
	}
	return &RestyLogger{l: l.With(slog.String("component", "http"))}
}

func (r *RestyLogger) Errorf(format string, v ...any) { r.l.Error(fmt.Sprintf(format, v...)) }
func (r *RestyLogger) Warnf(format string, v ...any)  { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r *RestyLogger) Debugf(format string, v ...any) { r.l.Debug(fmt.Sprintf(format, v...)) }
