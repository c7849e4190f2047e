package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger enriches a logger with whatever tracing identifiers the
// context carries.
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()

	if traceID := GetTraceID(ctx); traceID != "" {
		lc = lc.Str("trace_id", traceID)
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		lc = lc.Str("request_id", requestID)
	}
	if sessionID := GetSessionID(ctx); sessionID != "" {
		lc = lc.Str("session_id", sessionID)
	}

	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return baseLogger
	}
	return PropagateToLogger(ctx, baseLogger)
}
