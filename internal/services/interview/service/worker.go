package service

import (
	"context"
	"time"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	turns "turnstile/internal/services/turns/domain"

	"golang.org/x/sync/errgroup"
)

// Run leases pending turns and applies them until ctx is cancelled
// a turn.assembled nudge skips the rest of the poll interval
func (s *Svc) Run(ctx context.Context) error {
	t := time.NewTicker(s.config.PollEvery)
	defer t.Stop()

	log := logger.Named("interview.worker")
	log.Info().
		Int("concurrency", s.config.Concurrency).
		Dur("poll", s.config.PollEvery).
		Int("max_attempts", s.config.MaxAttempts).
		Msg("pipeline worker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-s.wake:
		}
		for {
			n, err := s.ProcessBatch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Msg("lease turns failed")
				break
			}
			if n < s.config.Batch {
				break
			}
		}
	}
}

// Nudge wakes the worker loop without blocking
func (s *Svc) Nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ProcessBatch leases one batch of head turns and applies them concurrently
// heads belong to distinct conversations so they never contend on state
func (s *Svc) ProcessBatch(ctx context.Context) (int, error) {
	leased, err := s.turns.LeaseTurns(ctx, s.config.Batch, s.config.LeaseFor)
	if err != nil {
		return 0, err
	}
	if len(leased) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, turn := range leased {
		turn := turn
		g.Go(func() error {
			s.process(gctx, turn)
			return nil
		})
	}
	return len(leased), g.Wait()
}

func (s *Svc) process(ctx context.Context, turn turns.AssembledTurn) {
	ctx = logger.WithRequest(ctx, "", turn.Key.ConversationID)
	err := s.HandleTurn(ctx, turn)
	if err == nil || ctx.Err() != nil {
		return
	}
	s.handleTurnError(ctx, turn, err)
}

func (s *Svc) handleTurnError(ctx context.Context, turn turns.AssembledTurn, err error) {
	log := logger.C(ctx).With().Str("turn_id", turn.TurnID).Int("attempts", turn.Attempts+1).Logger()
	msg := trimErr(err)

	attempts := turn.Attempts + 1
	if attempts >= s.config.MaxAttempts || permanent(err) {
		if cerr := s.turns.CompleteTurn(ctx, turn.TurnID, turns.TurnDropped, msg); cerr != nil {
			log.Error().Err(cerr).Msg("drop failed turn")
			return
		}
		s.metrics.Pipeline.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("turn dropped after failures")
		return
	}

	back := backoffFor(turn.Attempts, s.config.RetryBaseMs)
	if perr.Retryable(err) {
		back = backoffFor(0, s.config.RetryBaseMs)
	}
	if perr.IsCode(err, perr.ErrorCodeTooManyRequests) {
		back += 5 * time.Second
	}
	if rerr := s.turns.RetryTurn(ctx, turn.TurnID, back, msg); rerr != nil {
		log.Error().Err(rerr).Msg("schedule retry")
		return
	}
	s.metrics.Pipeline.WithLabelValues("retried").Inc()
	log.Warn().Err(err).Dur("backoff", back).Msg("turn failed scheduled retry")
}

// permanent errors can never succeed on a retry of the same turn text
func permanent(err error) bool {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeInvalidArgument, perr.ErrorCodeValidation:
		return true
	}
	return false
}

func trimErr(err error) string {
	const n = 500
	s := err.Error()
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func backoffFor(attempts int, baseMs int) time.Duration {
	if baseMs <= 0 {
		baseMs = 500
	}
	if attempts < 0 {
		attempts = 0
	}
	ms := min(int64(baseMs)<<uint(attempts), int64(10*time.Minute/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
