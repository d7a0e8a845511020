// Package pg opens the pgx pool the postgres backend runs on
package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the pool
type Config struct {
	URL      string
	MaxConns int32
	// AppName shows up as application_name in pg_stat_activity
	AppName string
	// SlowMs marks queries at or above it as slow for the tracer
	SlowMs int
}

// PG is the pool plus the tracer its adapter reports to
type PG struct {
	Pool   *pgxpool.Pool
	Tracer QueryTracer
	SlowMs int
}

// Option adjusts the parsed pool config before the pool is built
type Option func(*pgxpool.Config)

var newPool = pgxpool.NewWithConfig

// Open parses cfg.URL and builds the pool; it does not wait for the server
func Open(ctx context.Context, cfg Config, tracer QueryTracer, opts ...Option) (*PG, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.AppName != "" {
		pcfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}
	for _, o := range opts {
		o(pcfg)
	}
	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &PG{Pool: pool, Tracer: tracer, SlowMs: cfg.SlowMs}, nil
}

// Close closes the pool; nil safe
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}
