package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

var _ gormlogger.Interface = (*gormLogger)(nil)

// gormLogger forwards gorm output to slog. SQL text is only logged in debug
// mode; statements carry ciphertext, never plaintext tokens.
type gormLogger struct {
	logger *slog.Logger
	level  gormlogger.LogLevel
}

func newGormLogger(logger *slog.Logger, debug bool) *gormLogger {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return &gormLogger{logger: logger.With(slog.String("component", "db")), level: level}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.InfoContext(ctx, msg, slog.Any("args", args))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.WarnContext(ctx, msg, slog.Any("args", args))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.ErrorContext(ctx, msg, slog.Any("args", args))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		_, rows := fc()
		l.logger.ErrorContext(ctx, "query failed",
			slog.Int64("rows_affected", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		_, rows := fc()
		l.logger.WarnContext(ctx, "slow query",
			slog.Int64("rows_affected", rows),
			slog.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.DebugContext(ctx, "query",
			slog.String("sql", sql),
			slog.Int64("rows_affected", rows),
			slog.Duration("elapsed", elapsed))
	}
}
