package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// SlowStatementThreshold is the elapsed time above which a journal
// statement is logged at Warn
const SlowStatementThreshold = 200 * time.Millisecond

// SQLLogger adapts GORM's logger interface to zap for the exchange journal.
// Each statement is tagged with the request, ticket and journal fields carried
// by its context.
type SQLLogger struct {
	logger        *zap.Logger
	logLevel      gormlogger.LogLevel
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*SQLLogger)(nil)

// NewSQLLogger creates a journal SQL logger. level is the configured journal
// log level (silent, error, warn, info).
func NewSQLLogger(zapLogger *zap.Logger, level string) *SQLLogger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &SQLLogger{
		logger:        zapLogger.Named("journal"),
		logLevel:      sqlLogLevel(level),
		slowThreshold: SlowStatementThreshold,
	}
}

// LogMode implements gormlogger.Interface
func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *SQLLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		l.with(ctx).Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		l.with(ctx).Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *SQLLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		l.with(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface
func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}
	if errors.Is(err, gormlogger.ErrRecordNotFound) {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("statement", statementVerb(sql)),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	log := l.with(ctx)

	switch {
	case err != nil && l.logLevel >= gormlogger.Error:
		log.Error("Journal statement failed", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.logLevel >= gormlogger.Warn:
		log.Warn("Slow journal statement", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.logLevel >= gormlogger.Info:
		log.Debug("Journal statement", fields...)
	}
}

func (l *SQLLogger) with(ctx context.Context) *zap.Logger {
	var fields []zap.Field
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if ticket := GetTicket(ctx); ticket != "" {
		fields = append(fields, TicketField(ticket))
	}
	fields = append(fields, JournalFields(ctx)...)
	return l.logger.With(fields...)
}

// statementVerb returns the leading SQL keyword, upper-cased
func statementVerb(sql string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	return strings.ToUpper(verb)
}

func sqlLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
