package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	ticketKey    contextKey = "ticket"
	journalKey   contextKey = "journal"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, a no-op logger if absent
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// FromContextOr retrieves the logger from context, fallback if absent
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return fallback
}

// WithRequestID adds request ID to context and returns enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithTicket adds a Web Connector session ticket to context and returns enriched logger.
// Only a short prefix of the ticket is logged.
func WithTicket(ctx context.Context, logger *zap.Logger, ticket string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, ticketKey, ticket)
	enriched := logger.With(TicketField(ticket))
	return WithContext(ctx, enriched), enriched
}

// GetTicket retrieves the session ticket from context
func GetTicket(ctx context.Context) string {
	if ticket, ok := ctx.Value(ticketKey).(string); ok {
		return ticket
	}
	return ""
}

// TicketField logs the first eight characters of a ticket
func TicketField(ticket string) zap.Field {
	if len(ticket) > 8 {
		ticket = ticket[:8]
	}
	return zap.String("ticket", ticket)
}

// WithJournalFields attaches fields describing the journal row a statement
// touches. They are appended to any fields already in ctx.
func WithJournalFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	merged := append(JournalFields(ctx), fields...)
	return context.WithValue(ctx, journalKey, merged)
}

// JournalFields returns a copy of the fields set by WithJournalFields
func JournalFields(ctx context.Context) []zap.Field {
	fields, _ := ctx.Value(journalKey).([]zap.Field)
	return append([]zap.Field(nil), fields...)
}

// WithTraceContext adds trace_id and span_id from the context's span.
// Without a valid span the logger is returned unchanged.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

// L returns the context's logger with trace correlation fields.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	return WithTraceContext(ctx, FromContext(ctx))
}
