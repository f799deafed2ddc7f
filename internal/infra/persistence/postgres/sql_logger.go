package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"athlo/config"
	deliverycontext "athlo/internal/delivery/context"
	"athlo/internal/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

var (
	_ logger.Interface  = (*sqlLogger)(nil)
	_ gorm.ParamsFilter = (*sqlLogger)(nil)
)

// sqlLogger writes GORM statements through the request-scoped logger when the
// statement context carries one, so every SQL line has the request_id of the
// call that issued it. Bound parameters are dropped before GORM renders the
// statement: they carry password hashes and refresh token strings.
type sqlLogger struct {
	base          *slog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newSQLLogger(base *slog.Logger, cfg *config.Config) *sqlLogger {
	l := &sqlLogger{
		base:          base,
		level:         logger.Warn,
		slowThreshold: defaultSlowQueryThreshold,
	}
	if cfg == nil {
		return l
	}
	if cfg.Env.Debug {
		l.level = logger.Info
	}
	if cfg.Postgres != nil && cfg.Postgres.SlowQueryThreshold > 0 {
		l.slowThreshold = cfg.Postgres.SlowQueryThreshold
	}

	return l
}

func (l *sqlLogger) LogMode(level logger.LogLevel) logger.Interface {
	cloned := *l
	cloned.level = level

	return &cloned
}

// ParamsFilter keeps the placeholders in the rendered SQL.
func (l *sqlLogger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

func (l *sqlLogger) Info(ctx context.Context, msg string, args ...any) {
	l.message(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (l *sqlLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.message(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (l *sqlLogger) Error(ctx context.Context, msg string, args ...any) {
	l.message(ctx, logger.Error, slog.LevelError, msg, args)
}

func (l *sqlLogger) message(ctx context.Context, threshold logger.LogLevel, level slog.Level, msg string, args []any) {
	log := l.scoped(ctx)
	if l.level < threshold || log == nil {
		return
	}

	log.LogAttrs(ctx, level, "Postgres driver message", slog.String("message", fmt.Sprintf(msg, args...)))
}

// Trace logs failed statements, then slow ones, then (in Info mode) every
// statement. A missing row is an expected outcome for lookups and is not an error.
func (l *sqlLogger) Trace(ctx context.Context, begin time.Time, sqlAndRows func() (string, int64), err error) {
	log := l.scoped(ctx)
	if log == nil || l.level == logger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		log.LogAttrs(ctx, level, "SQL statement failed", append(statementAttrs(sqlAndRows, elapsed), slog.Any("error", err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		log.LogAttrs(ctx, slog.LevelWarn, "Slow SQL statement",
			append(statementAttrs(sqlAndRows, elapsed), slog.Duration("slow_threshold", l.slowThreshold))...)
	case l.level >= logger.Info:
		log.LogAttrs(ctx, slog.LevelDebug, "SQL statement", statementAttrs(sqlAndRows, elapsed)...)
	}
}

func (l *sqlLogger) scoped(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, l.base)
}

func statementAttrs(sqlAndRows func() (string, int64), elapsed time.Duration) []slog.Attr {
	sql, rows := sqlAndRows()
	verb, _, _ := strings.Cut(strings.TrimSpace(sql), " ")

	return []slog.Attr{
		slog.String("statement", strings.ToUpper(verb)),
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
}
