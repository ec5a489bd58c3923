// Package logctx carries a zerolog logger through context.Context so that
// every query issued on behalf of an aggregation run logs with the run's
// identity (run_id, store_id, container) without threading loggers by hand.
//
// Usage:
//
//	ctx = logctx.WithRun(ctx, runID)
//	ctx = logctx.WithStore(ctx, store.ID, store.Nickname)
//	log := logctx.FromContext(ctx)
package logctx

import (
	"context"

	"github.com/bouncestorage/bounce-stats/pkg/logging"
	"github.com/rs/zerolog"
)

// loggerKey is the private key type for storing loggers in context.
type loggerKey struct{}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. Without one it falls back
// to the process logger configured by logging.Init.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a new context whose logger has the string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithInt returns a new context whose logger has the int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithRun tags the logger with an aggregation run id.
func WithRun(ctx context.Context, runID string) context.Context {
	return WithStr(ctx, "run_id", runID)
}

// WithStore tags the logger with the object store being aggregated.
func WithStore(ctx context.Context, storeID int, nickname string) context.Context {
	logger := FromContext(ctx).With().
		Int("store_id", storeID).
		Str("store", nickname).
		Logger()
	return WithLogger(ctx, logger)
}

// WithContainer tags the logger with a container name or pattern.
func WithContainer(ctx context.Context, container string) context.Context {
	return WithStr(ctx, "container", container)
}
