// internal/logger/context.go
//
// Request-scoped logger helpers.
//
// Usage
// -----
//
//	ctx = logger.WithContext(ctx, zap.L().With(zap.String("request_id", id)))
//	logger.FromContext(ctx).Debug("form resolved")
//
// FromContext never returns nil: without a stored logger it falls back to the
// zap global.
package logger

import (
	"context"

	"go.uber.org/zap"
)

// loggerKey is unexported to avoid context-key collisions.
type loggerKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored by WithContext, or zap.L().
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.L()
}
