package api

import (
	"context"
	"errors"

	"turnstile/internal/modkit"
	"turnstile/internal/platform/bus"
	"turnstile/internal/platform/config"
	"turnstile/internal/platform/logger"
	"turnstile/internal/platform/metrics"
	"turnstile/internal/platform/store"
	ptime "turnstile/internal/platform/time"

	"github.com/joho/godotenv"
)

// Runtime is the opened infrastructure shared by every binary
type Runtime struct {
	Service string
	Config  config.Conf
	Store   *store.Store
	Bus     *bus.Bus
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

// LoadEnv reads .env files when present; real environment variables win
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Open brings up logging, the store backends, metrics and the bus
// withBus=false skips the bus for one-shot tools
func Open(ctx context.Context, service string, withBus bool) (*Runtime, error) {
	opt := logger.FromEnv()
	if opt.Service == "" {
		opt.Service = service
	}
	logger.Init(opt)
	l := logger.Get()

	root := config.New()
	st, err := store.Open(ctx, store.ConfigFromEnv(root, service), store.WithLogger(*l))
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Service: service, Config: root, Store: st, Metrics: metrics.Default(), Log: l}
	if !withBus {
		return rt, nil
	}
	b, err := bus.New(bus.FromConfig(root.Prefix("BUS_")), st.RDS, logger.Named("bus"), bus.WithMetrics(rt.Metrics))
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	rt.Bus = b
	return rt, nil
}

// Deps returns the module dependencies backed by the runtime
func (rt *Runtime) Deps() modkit.Deps {
	d := modkit.Deps{
		Log:     *rt.Log,
		Cfg:     rt.Config,
		PG:      rt.Store.PG,
		KV:      rt.Store.KV,
		Clock:   ptime.System{},
		Metrics: rt.Metrics,
	}
	if rt.Bus != nil {
		d.Bus = rt.Bus
	}
	return d
}

// Close releases the bus and the store
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Bus != nil {
		errs = append(errs, rt.Bus.Close())
	}
	errs = append(errs, rt.Store.Close(ctx))
	return errors.Join(errs...)
}
