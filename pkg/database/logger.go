package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
)

// zerologGorm sends GORM's query log through the request-scoped zerolog
// logger, so SQL lines carry the same request_id as the handler.
type zerologGorm struct {
	level logger.LogLevel
	slow  time.Duration
}

// NewLogger returns a gorm logger writing through pkg/log. level is one
// of silent, error, warn or info.
func NewLogger(level string, slow time.Duration) logger.Interface {
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return &zerologGorm{level: parseGormLevel(level), slow: slow}
}

func parseGormLevel(s string) logger.LogLevel {
	switch s {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func (z *zerologGorm) LogMode(level logger.LogLevel) logger.Interface {
	cp := *z
	cp.level = level
	return &cp
}

func (z *zerologGorm) Info(ctx context.Context, msg string, args ...any) {
	if z.level >= logger.Info {
		l := pkglog.Ctx(ctx)
		l.Info().Msgf(msg, args...)
	}
}

func (z *zerologGorm) Warn(ctx context.Context, msg string, args ...any) {
	if z.level >= logger.Warn {
		l := pkglog.Ctx(ctx)
		l.Warn().Msgf(msg, args...)
	}
}

func (z *zerologGorm) Error(ctx context.Context, msg string, args ...any) {
	if z.level >= logger.Error {
		l := pkglog.Ctx(ctx)
		l.Error().Msgf(msg, args...)
	}
}

func (z *zerologGorm) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	l := pkglog.Ctx(ctx)

	var evt *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && z.level >= logger.Error:
		evt = l.Error().Err(err)
	case elapsed > z.slow && z.level >= logger.Warn:
		evt = l.Warn().Bool("slow", true)
	case z.level >= logger.Info:
		evt = l.Debug()
	default:
		return
	}

	sql, rows := fc()
	evt.Str("sql", sql).
		Int64("rows", rows).
		Float64(pkglog.FieldLatency, float64(elapsed.Milliseconds())).
		Msg("gorm query")
}
