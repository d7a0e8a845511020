// @title         Turnstile API
// @version       0.1.0
// @description   Candidate channels, conversation lifecycle and turn status

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"turnstile/internal/platform/bus"
	phttp "turnstile/internal/platform/net/http"
	"turnstile/internal/services/api"
	imod "turnstile/internal/services/interview/module"

	"golang.org/x/sync/errgroup"
)

func main() { os.Exit(run()) }

// run returns the exit code once the runtime is closed
func run() int {
	fMode := flag.String("mode", "api", "process role: api | all (all also runs the aggregator and pipeline)")
	flag.Parse()
	api.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := api.Open(ctx, "turnstile-api", true)
	if err != nil {
		panic(err)
	}
	l := rt.Log
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close runtime")
		}
	}()

	role, err := api.ServerRole(*fMode, rt.Config.Prefix("BUS_").MayString("TRANSPORT", bus.TransportGoChannel))
	if err != nil {
		l.Error().Err(err).Msg("invalid process role")
		return 2
	}

	app := api.Build(rt.Deps(), rt.Service, rt.Store)
	app.Subscribe(rt.Bus, role)

	apiCfg := rt.Config.Prefix("API_")
	srv := phttp.NewServer(rt.Config)
	api.Mount(srv.Router(), app, api.Options{
		Config:         apiCfg,
		OperatorToken:  apiCfg.MayString("OPERATOR_TOKEN", ""),
		EnableSwagger:  apiCfg.MayBool("SWAGGER", false),
		EnableProfiler: apiCfg.MayBool("PROFILER", false),
		AllowedOrigins: apiCfg.MayCSV("CORS_ORIGINS", nil),
		Metrics:        rt.Metrics.Handler(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Bus.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	if role == api.RoleAll {
		g.Go(func() error { return app.Turns.TurnPorts().Worker.Run(gctx) })
		g.Go(func() error { return app.Interview.Ports().(imod.Ports).Worker.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Channels.Hub().CloseAll()
		return srv.Shutdown(sctx)
	})

	l.Info().Str("mode", string(role)).Str("addr", srv.Addr()).Msg("turnstile-api started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Error().Err(err).Msg("turnstile-api stopped")
		return 1
	}
	return 0
}
