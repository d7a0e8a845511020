// Package service runs the interview pipeline: conversation lifecycle and ordered application of assembled turns
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
	"turnstile/internal/services/interview/domain"
	"turnstile/internal/services/interview/repo"
	turns "turnstile/internal/services/turns/domain"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Service defines the interview service contract
type Service interface {
	domain.LifecyclePort
	domain.PipelinePort
	domain.WorkerPort
}

// Turns is what the pipeline needs from the aggregator
type Turns interface {
	turns.OutboxPort
	turns.LifecyclePort
}

// Config carries runtime knobs for the pipeline worker
type Config struct {
	ScriptPath  string
	Concurrency int
	Batch       int
	LeaseFor    time.Duration
	PollEvery   time.Duration
	RetryBaseMs int
	MaxAttempts int
	// AIRatePerSec and AIBurst bound collaborator calls across the process
	AIRatePerSec float64
	AIBurst      int
}

// FromConfig reads INTERVIEW_* settings
func FromConfig(cfg config.Conf) Config {
	c := cfg.Prefix("INTERVIEW_")
	return Config{
		ScriptPath:   c.MayString("SCRIPT", ""),
		Concurrency:  c.MayInt("CONCURRENCY", 4),
		Batch:        c.MayInt("BATCH", 16),
		LeaseFor:     c.MayDuration("LEASE", 2*time.Minute),
		PollEvery:    c.MayDuration("POLL_EVERY", 500*time.Millisecond),
		RetryBaseMs:  c.MayInt("RETRY_BASE_MS", 500),
		MaxAttempts:  c.MayInt("MAX_ATTEMPTS", 8),
		AIRatePerSec: c.MayFloat64("AI_RATE_PER_SEC", 2),
		AIBurst:      c.MayInt("AI_BURST", 4),
	}
}

func withDefaults(c Config) Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Batch <= 0 {
		c.Batch = 16
	}
	if c.LeaseFor <= 0 {
		c.LeaseFor = 2 * time.Minute
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.AIRatePerSec <= 0 {
		c.AIRatePerSec = 2
	}
	if c.AIBurst <= 0 {
		c.AIBurst = 1
	}
	return c
}

// Svc implements the interview service
type Svc struct {
	Repo    repo.Repo
	turns   Turns
	ai      domain.Collaborator
	script  domain.Script
	pub     bus.Publisher
	clock   ptime.Clock
	metrics *metrics.Metrics
	log     *logger.Logger
	config  Config
	limiter *rate.Limiter
	wake    chan struct{}
	newID   func() string
}

var _ Service = (*Svc)(nil)

// New constructs an interview service over the configured store backend
func New(deps modkit.Deps, t Turns, ai domain.Collaborator, script domain.Script, cfg Config) *Svc {
	var r repo.Repo
	switch {
	case deps.PG != nil:
		r = repo.NewPG(deps.PG)
	case deps.KV != nil:
		r = repo.NewKV(deps.KV)
	default:
		panic("interview.Service requires a PG TxRunner or a pebble KV")
	}
	return NewWithRepo(deps, r, t, ai, script, cfg)
}

// NewWithRepo constructs an interview service over an explicit repo
func NewWithRepo(deps modkit.Deps, r repo.Repo, t Turns, ai domain.Collaborator, script domain.Script, cfg Config) *Svc {
	if t == nil || ai == nil {
		panic("interview.Service requires turns and a collaborator")
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Default()
	}
	cfg = withDefaults(cfg)
	return &Svc{
		Repo:    r,
		turns:   t,
		ai:      ai,
		script:  script,
		pub:     deps.Bus,
		clock:   deps.Now(),
		metrics: m,
		log:     logger.Named("interview"),
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.AIRatePerSec), cfg.AIBurst),
		wake:    make(chan struct{}, 1),
		newID:   uuid.NewString,
	}
}

// Script returns the interview script in use
func (s *Svc) Script() domain.Script { return s.script }

func (s *Svc) publish(ctx context.Context, topic string, v any) error {
	if s.pub == nil {
		return nil
	}
	return s.pub.Publish(ctx, topic, v)
}

func (s *Svc) reply(ctx context.Context, st domain.State, text string, final bool) {
	if text == "" {
		return
	}
	evt := domain.ReplyReady{
		ConversationID: st.ConversationID,
		CandidateID:    st.CandidateID,
		Channel:        st.Channel,
		ChatRef:        st.ChatRef,
		Step:           st.Step,
		Text:           text,
		Final:          final,
	}
	if err := s.publish(ctx, domain.TopicReplyReady, evt); err != nil {
		logger.C(ctx).Warn().Err(err).Str("conversation_id", st.ConversationID).Msg("interview: reply publish failed")
	}
}
