package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger routes gorm output through the context logger so queries issued
// while serving a request carry its request_id.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger maps GORM_LOG_LEVEL style names (silent, error, warn, info) to
// a gorm logger. Empty or unknown names log errors only.
func NewGormLogger(level string) *GormLogger {
	lvl := gormlogger.Error
	switch level {
	case "silent":
		lvl = gormlogger.Silent
	case "warn", "warning":
		lvl = gormlogger.Warn
	case "info":
		lvl = gormlogger.Info
	}
	return &GormLogger{level: lvl, slowThreshold: defaultSlowQuery}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		FromContext(ctx).Info("gorm", "detail", fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		FromContext(ctx).Warn("gorm", "detail", fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		FromContext(ctx).Error("gorm", "detail", fmt.Sprintf(msg, args...))
	}
}

// Trace logs one statement. Record-not-found and duplicate-key results are
// expected outcomes for this service and are not logged as errors.
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level == gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	attrs := []any{
		"sql", sql,
		"rows", rows,
		"elapsed_ms", float64(elapsed.Microseconds()) / 1000.0,
	}

	switch {
	case err != nil && !expectedQueryErr(err):
		if g.level >= gormlogger.Error {
			FromContext(ctx).Error("gorm query failed", append(attrs, "err", err)...)
		}
	case elapsed > g.slowThreshold:
		if g.level >= gormlogger.Warn {
			FromContext(ctx).Warn("gorm slow query", append(attrs, "threshold_ms", g.slowThreshold.Milliseconds())...)
		}
	case g.level >= gormlogger.Info:
		FromContext(ctx).Info("gorm query", attrs...)
	}
}

func expectedQueryErr(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, context.Canceled)
}

var _ gormlogger.Interface = (*GormLogger)(nil)
