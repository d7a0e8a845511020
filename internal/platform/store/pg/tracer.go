package pg

import (
	"context"
	"strings"

	"turnstile/internal/platform/logger"

	"github.com/rs/zerolog"
)

// QueryEvent describes one finished statement
type QueryEvent struct {
	SQL       string
	Args      any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer receives an event per statement run through the store adapter
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// Tracer logs statements under component=pg
// slow and failed statements are always logged; the rest only when all is set
// it pins its own level so STORE_PG_LOG_SQL works whatever LOG_LEVEL says
func Tracer(root logger.Logger, all bool) QueryTracer {
	return &logTracer{
		log: root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger(),
		all: all,
	}
}

type logTracer struct {
	log logger.Logger
	all bool
}

func (l *logTracer) OnQuery(_ context.Context, ev QueryEvent) {
	if !l.all && !ev.Slow && ev.Err == nil {
		return
	}
	evt := l.log.Info()
	switch {
	case ev.Err != nil:
		evt = l.log.Error()
	case ev.Slow:
		evt = l.log.Warn()
	}
	evt.Float64("elapsed_ms", float64(ev.ElapsedUS)/1000).
		Bool("slow", ev.Slow).
		Str("sql", compact(ev.SQL)).
		Interface("args", ev.Args).
		Err(ev.Err).
		Msg("pg query")
}

// compact folds a multi line statement onto one line
func compact(sql string) string { return strings.Join(strings.Fields(sql), " ") }
