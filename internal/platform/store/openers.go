package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"turnstile/internal/platform/store/pg"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/redis/go-redis/v9"
)

// openPG opens pg and wraps it with our sql adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	tracer := pg.Tracer(s.Log, cfg.PG.LogSQL)

	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.PG.URL,
		MaxConns: cfg.PG.MaxConns,
		AppName:  cfg.AppName,
		SlowMs:   cfg.PG.SlowQueryMs,
	}, tracer)
	if err != nil {
		return nil, err
	}

	maxAttempts := cfg.PG.ConnectRetries
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	pingTimeout := cfg.PG.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}

	// ping the pool directly so boot does not emit SQL trace lines
	err = retryPing(ctx, maxAttempts, func(ctx context.Context) error {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return p.Pool.Ping(toCtx)
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a := newPGAdapter(p)
	s.PG = a
	return a, nil
}

// openKV opens pebble on disk or on a memory filesystem
func openKV(cfg KVConfig, base *pebble.Options) (*pebble.DB, error) {
	opts := &pebble.Options{}
	if base != nil {
		cp := *base
		opts = &cp
	}
	path := cfg.Path
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
		if path == "" {
			path = "mem"
		}
	}
	if path == "" {
		return nil, errors.New("kv: empty path")
	}
	return pebble.Open(path, opts)
}

// pingKV reads a key that never exists; anything but ErrNotFound means the db is unhealthy
func pingKV(db *pebble.DB) error {
	_, closer, err := db.Get([]byte("\x00ping"))
	if err == nil {
		return closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

// openRedis builds a client and waits for the server to answer
func openRedis(ctx context.Context, cfg RedisConfig) (redis.UniversalClient, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	err := retryPing(ctx, 10, func(ctx context.Context) error {
		toCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return rc.Ping(toCtx).Err()
	})
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// retryPing calls ping with exponential backoff until it succeeds or attempts run out
func retryPing(ctx context.Context, maxAttempts int, ping func(context.Context) error) error {
	const (
		backoffStart   = 150 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)
	var lastErr error
	backoff := backoffStart
	for i := 0; i < maxAttempts; i++ {
		if lastErr = ping(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < backoffCeiling {
			backoff = min(backoff*2, backoffCeiling)
		}
	}
	return fmt.Errorf("ping failed after %d attempts: %w", maxAttempts, lastErr)
}
