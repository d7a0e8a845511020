package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"turnstile/internal/services/api"
	imod "turnstile/internal/services/interview/module"

	"golang.org/x/sync/errgroup"
)

func main() { os.Exit(run()) }

// run returns the exit code once the runtime is closed
func run() int {
	api.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := api.Open(ctx, "turnstile-worker", true)
	if err != nil {
		panic(err)
	}
	l := rt.Log
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close runtime")
		}
	}()
	if rt.Store.KV != nil {
		l.Warn().Msg("worker on the embedded kv store cannot share state with an api process; prefer STORE_BACKEND=pg")
	}

	app := api.Build(rt.Deps(), rt.Service, rt.Store)
	app.Subscribe(rt.Bus, api.RoleWorker)

	// aggregator handlers, the sweeper loop and the pipeline loop share one lifetime
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Bus.Run(gctx) })
	g.Go(func() error { return app.Turns.TurnPorts().Worker.Run(gctx) })
	g.Go(func() error { return app.Interview.Ports().(imod.Ports).Worker.Run(gctx) })

	l.Info().Msg("turnstile-worker started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Error().Err(err).Msg("turnstile-worker stopped")
		return 1
	}
	return 0
}
