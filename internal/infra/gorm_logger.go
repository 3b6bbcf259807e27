package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"

	"github.com/dpxrk/Pactwise-sub001/internal/logger"
)

// gormZapAdapter 把 GORM 日志接到全局 Zap
// SQL 日志带上请求链路的 trace_id，便于和任务派发日志对齐。
type gormZapAdapter struct {
	level         gormLogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger 创建 GORM 日志适配器
func NewGormLogger(level gormLogger.LogLevel, slowThreshold time.Duration) gormLogger.Interface {
	if slowThreshold <= 0 {
		slowThreshold = 200 * time.Millisecond
	}
	return &gormZapAdapter{level: level, slowThreshold: slowThreshold}
}

func (a *gormZapAdapter) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *a
	clone.level = level
	return &clone
}

func (a *gormZapAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if a.level >= gormLogger.Info {
		logger.WithContext(ctx).Sugar().Infof(msg, data...)
	}
}

func (a *gormZapAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if a.level >= gormLogger.Warn {
		logger.WithContext(ctx).Sugar().Warnf(msg, data...)
	}
}

func (a *gormZapAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if a.level >= gormLogger.Error {
		logger.WithContext(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志；ErrRecordNotFound 不按错误记录，租户隔离查询大量依赖它
func (a *gormZapAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if a.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	l := logger.WithContext(ctx)

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		l.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case elapsed > a.slowThreshold:
		l.Warn("SQL 慢查询", fields...)
	case a.level >= gormLogger.Info:
		l.Debug("SQL 执行", fields...)
	}
}
