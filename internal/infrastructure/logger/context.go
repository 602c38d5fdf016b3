package logger

import (
	"context"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerKey struct{}

// WithContext attaches l to ctx
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger attached to ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// Fields returns the correlation fields found in ctx: the trace and span of
// the active span and the acting account, user and request.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if exec, ok := shared.ExecutionFromContext(ctx); ok {
		if exec.AccountID != uuid.Nil {
			fields = append(fields, zap.String("account_id", exec.AccountID.String()))
		}
		if !exec.IsSystem() {
			fields = append(fields, zap.String("user_id", exec.UserID.String()))
		}
		if exec.RequestID != "" {
			fields = append(fields, zap.String("request_id", exec.RequestID))
		}
	}
	return fields
}

// ContextLogger logs with the correlation fields of its context
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L wraps the logger attached to ctx
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

// WithLogger wraps l instead of the logger attached to ctx
func WithLogger(ctx context.Context, l *zap.Logger) *ContextLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ContextLogger{ctx: ctx, logger: l}
}

// With returns a child carrying fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...)}
}

// Zap returns the underlying logger with the correlation fields applied
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.logger.With(Fields(cl.ctx)...)
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.Zap().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.Zap().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.Zap().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.Zap().Error(msg, fields...) }
