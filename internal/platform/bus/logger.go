package bus

import (
	"turnstile/internal/platform/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// zlog adapts zerolog to watermill.LoggerAdapter
type zlog struct {
	log    *logger.Logger
	fields watermill.LogFields
}

// NewLogger wraps l for watermill components
func NewLogger(l *logger.Logger) watermill.LoggerAdapter {
	return &zlog{log: l}
}

func (z *zlog) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range z.fields {
		e = e.Interface(k, v)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}

func (z *zlog) Error(msg string, err error, fields watermill.LogFields) {
	z.event(z.log.Error().Err(err), fields).Msg(msg)
}

func (z *zlog) Info(msg string, fields watermill.LogFields) {
	z.event(z.log.Info(), fields).Msg(msg)
}

// Debug is demoted to trace; watermill is chatty at debug
func (z *zlog) Debug(msg string, fields watermill.LogFields) {
	z.event(z.log.Trace(), fields).Msg(msg)
}

func (z *zlog) Trace(msg string, fields watermill.LogFields) {
	z.event(z.log.Trace(), fields).Msg(msg)
}

func (z *zlog) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zlog{log: z.log, fields: z.fields.Add(fields)}
}
