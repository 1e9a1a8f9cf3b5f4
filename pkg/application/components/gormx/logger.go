package gormx

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
)

// gormLogger routes gorm output to the framework logger.
type gormLogger struct {
	component string
	level     logger.LogLevel
	slow      time.Duration
	debug     bool
}

// NewLogger accepts silent, error, warn, info or debug. debug logs every statement.
func NewLogger(component, level string, slow time.Duration) logger.Interface {
	l := &gormLogger{component: component, level: logger.Warn, slow: 200 * time.Millisecond}
	switch strings.ToLower(level) {
	case "silent":
		l.level = logger.Silent
	case "error":
		l.level = logger.Error
	case "warn", "warning", "":
		l.level = logger.Warn
	case "info":
		l.level = logger.Info
	case "debug":
		l.level = logger.Info
		l.debug = true
	}
	if slow > 0 {
		l.slow = slow
	}
	return l
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		logging.Infof(ctx, "["+l.component+"] "+msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		logging.Warnf(ctx, "["+l.component+"] "+msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		logging.Errorf(ctx, "["+l.component+"] "+msg, data...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		logging.Error(ctx, "sql error", l.fields(elapsed, sql, rows, zap.Error(err))...)
	case elapsed > l.slow && l.level >= logger.Warn:
		sql, rows := fc()
		logging.Warn(ctx, "slow sql", l.fields(elapsed, sql, rows, zap.Duration("threshold", l.slow))...)
	case l.debug:
		sql, rows := fc()
		logging.Debug(ctx, "sql", l.fields(elapsed, sql, rows)...)
	}
}

func (l *gormLogger) fields(elapsed time.Duration, sql string, rows int64, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("component", l.component),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}, extra...)
}
