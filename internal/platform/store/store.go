// Package store opens the backends a process is configured for: postgres, pebble and redis
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"turnstile/internal/platform/logger"

	"github.com/cockroachdb/pebble"
	"github.com/redis/go-redis/v9"
)

// Store is the facade for optional backends
// zero value is safe but does nothing
type Store struct {
	// Log is the logger used by subclients
	// zero means a no op zerolog logger
	Log logger.Logger
	// PG is the postgres sql seam, nil when disabled
	PG TxRunner
	// KV is the embedded pebble database, nil when disabled
	KV *pebble.DB
	// RDS is the redis client backing the distributed bus, nil when disabled
	RDS redis.UniversalClient

	kvOpts *pebble.Options
}

// Row exposes the minimal scan contract a single row needs
type Row interface {
	Scan(dest ...any) error
}

// Rows exposes the minimal iteration and scan for a result set
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
	Columns() []string
}

// CommandTag is a tiny interface to inspect command results
type CommandTag interface {
	String() string
	RowsAffected() int64
}

// RowQuerier is the read and write surface repos use for sql
type RowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// TxRunner wraps transaction execution around a function
type TxRunner interface {
	RowQuerier
	Tx(ctx context.Context, fn func(q RowQuerier) error) error
}

// Pinger is any seam that can report readiness
type Pinger interface{ Ping(context.Context) error }

// Open constructs a Store with the requested backends
// backends not enabled in cfg remain nil on the Store
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	if cfg.PG.Enabled {
		pgClient, err := openPG(ctx, cfg, s)
		if err != nil {
			return nil, err
		}
		s.PG = pgClient
	}

	if cfg.KV.Enabled {
		db, err := openKV(cfg.KV, s.kvOpts)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.KV = db
	}

	if cfg.RDS.Enabled {
		rc, err := openRedis(ctx, cfg.RDS)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.RDS = rc
	}

	return s, nil
}

// Probes returns one readiness check per enabled backend, keyed pg, redis and kv
func (s *Store) Probes() map[string]func(context.Context) error {
	out := map[string]func(context.Context) error{}
	if s == nil {
		return out
	}
	if p, ok := s.PG.(Pinger); ok {
		out["pg"] = p.Ping
	}
	if s.RDS != nil {
		out["redis"] = func(ctx context.Context) error { return s.RDS.Ping(ctx).Err() }
	}
	if s.KV != nil {
		out["kv"] = func(context.Context) error { return pingKV(s.KV) }
	}
	return out
}

// Guard runs every probe and joins the failures, each prefixed with its backend
func (s *Store) Guard(ctx context.Context) error {
	if s == nil {
		return errors.New("nil store")
	}
	probes := s.Probes()
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := probes[name](ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes all initialized backends gracefully
// nil backends are ignored
func (s *Store) Close(ctx context.Context) error {
	var errs []error
	if s.RDS != nil {
		if e := s.RDS.Close(); e != nil {
			errs = append(errs, e)
		}
	}
	if s.KV != nil {
		if e := s.KV.Close(); e != nil {
			errs = append(errs, e)
		}
	}
	if c, ok := s.PG.(interface{ Close() error }); ok {
		if e := c.Close(); e != nil {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}
