// Package service contains the turn aggregator workflows: buffering, scheduling and assembly
package service

import (
	"context"
	"time"

	"turnstile/internal/modkit"
	"turnstile/internal/platform/bus"
	"turnstile/internal/platform/config"
	"turnstile/internal/platform/logger"
	"turnstile/internal/platform/metrics"
	ptime "turnstile/internal/platform/time"
	"turnstile/internal/services/turns/domain"
	"turnstile/internal/services/turns/repo"

	"github.com/google/uuid"
)

// Service defines the turns service contract
type Service interface {
	domainPorts
}

// domainPorts keeps the interface grouping local
type domainPorts interface {
	domain.BufferPort
	domain.ActivityPort
	domain.FlushPort
	domain.LifecyclePort
	domain.StatusPort
	domain.OutboxPort
	domain.SweeperPort
	domain.WorkerPort
}

// Config carries the scheduler knobs
type Config struct {
	// QuietPeriod is T: a key flushes once T passes with no new content or liveness
	QuietPeriod time.Duration
	// Lease bounds how long a claimed flush may run before another worker may take it
	Lease time.Duration
	// SweepEvery is the sweeper tick
	SweepEvery time.Duration
	// SweepBatch caps due keys per tick
	SweepBatch int
}

// FromConfig reads TURNS_* settings
func FromConfig(cfg config.Conf) Config {
	c := cfg.Prefix("TURNS_")
	return Config{
		QuietPeriod: time.Duration(c.MayInt("QUIET_PERIOD_SECONDS", 5)) * time.Second,
		Lease:       c.MayDuration("CLAIM_LEASE", 30*time.Second),
		SweepEvery:  c.MayDuration("SWEEP_EVERY", 250*time.Millisecond),
		SweepBatch:  c.MayInt("SWEEP_BATCH", 256),
	}
}

func withDefaults(c Config) Config {
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = 5 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 250 * time.Millisecond
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 256
	}
	return c
}

// Svc implements the turns service
type Svc struct {
	Repo    repo.Repo
	pub     bus.Publisher
	clock   ptime.Clock
	metrics *metrics.Metrics
	log     *logger.Logger
	config  Config
	newID   func() string
}

var _ Service = (*Svc)(nil)

// New constructs a turns service over the configured store backend
// Postgres wins when both are present
func New(deps modkit.Deps, cfg Config) *Svc {
	var r repo.Repo
	switch {
	case deps.PG != nil:
		r = repo.NewPG(deps.PG)
	case deps.KV != nil:
		r = repo.NewKV(deps.KV)
	default:
		panic("turns.Service requires a PG TxRunner or a pebble KV")
	}
	return NewWithRepo(deps, r, cfg)
}

// NewWithRepo constructs a turns service over an explicit repo
func NewWithRepo(deps modkit.Deps, r repo.Repo, cfg Config) *Svc {
	m := deps.Metrics
	if m == nil {
		m = metrics.Default()
	}
	return &Svc{
		Repo:    r,
		pub:     deps.Bus,
		clock:   deps.Now(),
		metrics: m,
		log:     logger.Named("turns"),
		config:  withDefaults(cfg),
		newID:   uuid.NewString,
	}
}

// QuietPeriod exposes T for adapters that show "still typing" hints
func (s *Svc) QuietPeriod() time.Duration { return s.config.QuietPeriod }

func (s *Svc) publish(ctx context.Context, topic string, v any) error {
	if s.pub == nil {
		return nil
	}
	return s.pub.Publish(ctx, topic, v)
}
