// Package logger owns the process zerolog root and the context scoped children built from it
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"turnstile/internal/platform/config/raw"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Logger is the project logging type
type Logger = zerolog.Logger

// Options configures the root logger
type Options struct {
	Level       string
	Format      string // console or json
	Service     string
	Writer      io.Writer
	WithCaller  bool
	SampleEvery int
}

// FromEnv reads LOG_* without going through config, which logs itself
func FromEnv() Options {
	rc := raw.New().Prefix("LOG_")
	return Options{
		Level:       rc.Get("LEVEL", "debug"),
		Format:      strings.ToLower(rc.Get("FORMAT", "console")),
		Service:     rc.Get("SERVICE", ""),
		WithCaller:  rc.GetBool("CALLER", false),
		SampleEvery: rc.GetInt("SAMPLE_EVERY", 0),
	}
}

var (
	once sync.Once
	root atomic.Pointer[Logger]
)

// Get returns the root logger, initialising it from the environment on first use
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	Init(FromEnv())
	return root.Load()
}

// Init builds the root logger; only the first call has any effect
func Init(opt Options) {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano

		w := opt.Writer
		if w == nil {
			w = os.Stdout
		}
		if opt.Format == "console" {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		}

		ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
		if bi, ok := debug.ReadBuildInfo(); ok {
			ctx = ctx.Str("go_version", bi.GoVersion)
		}
		if opt.Service != "" {
			ctx = ctx.Str("service", opt.Service)
		}
		if opt.WithCaller {
			ctx = ctx.Caller()
		}
		l := ctx.Logger()
		if opt.SampleEvery > 1 {
			l = l.Sample(&zerolog.BasicSampler{N: uint32(opt.SampleEvery)})
		}
		root.Store(&l)
	})
}

// parseLevel accepts zerolog level names plus "warning"; anything else is debug
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.DebugLevel
	}
	return lvl
}

type ctxKey int

const (
	keyRequestID ctxKey = iota
	keyConversation
)

// WithRequest tags ctx so C adds request_id and conversation_id; empty values are skipped
func WithRequest(ctx context.Context, reqID, conversationID string) context.Context {
	if reqID != "" {
		ctx = context.WithValue(ctx, keyRequestID, reqID)
	}
	if conversationID != "" {
		ctx = context.WithValue(ctx, keyConversation, conversationID)
	}
	return ctx
}

// C returns a child of the root carrying the ids found on ctx
// an HTTP request id set by the chi middleware counts too
func C(ctx context.Context) *Logger {
	b := Get().With()
	reqID, _ := ctx.Value(keyRequestID).(string)
	if reqID == "" {
		reqID = chimw.GetReqID(ctx)
	}
	if reqID != "" {
		b = b.Str("request_id", reqID)
	}
	if conv, _ := ctx.Value(keyConversation).(string); conv != "" {
		b = b.Str("conversation_id", conv)
	}
	l := b.Logger()
	return &l
}

// Named returns a child logger tagged with component
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}
