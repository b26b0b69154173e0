// Package requestctx carries per-request values (logger, trace metadata)
// through context without creating import cycles between middleware and
// the packages that log.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
)

var fallbackLogger = zap.NewNop()

// TraceInfo is the trace metadata carried alongside a request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger on the context. A nil logger falls back to
// the shared no-op instance.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = fallbackLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the context logger, or the shared no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return fallbackLogger
}

// NoopLogger returns the shared no-op instance so callers can detect it.
func NoopLogger() *zap.Logger { return fallbackLogger }

// WithTrace stores trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace returns the trace metadata when the request carries one.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID returns just the trace identifier, empty when absent.
func TraceID(ctx context.Context) string {
	if info, ok := Trace(ctx); ok {
		return info.TraceID
	}
	return ""
}
