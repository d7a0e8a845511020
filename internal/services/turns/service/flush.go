package service

import (
	"context"
	"errors"

	"turnstile/internal/platform/logger"
	"turnstile/internal/services/turns/domain"
)

// Claim tries to take the flush ticket of key
// not due, held, idle and closed keys all return ok=false without error
func (s *Svc) Claim(ctx context.Context, key domain.BufferKey) (domain.FlushTicket, bool, error) {
	t, out, err := s.Repo.Claim(ctx, key, s.newID(), s.clock.Now(), s.config.Lease)
	if err != nil {
		return domain.FlushTicket{}, false, err
	}
	s.metrics.Claims.WithLabelValues(string(out)).Inc()
	if out != domain.ClaimWon {
		logger.C(ctx).Debug().Str("key", key.String()).Str("outcome", string(out)).Msg("turns: no claim")
		return domain.FlushTicket{}, false, nil
	}
	return t, true, nil
}

// Assemble drains the ticket and writes the turn to the outbox
// an empty drain is ok=false; a lost claim surfaces domain.ErrClaimLost
func (s *Svc) Assemble(ctx context.Context, t domain.FlushTicket) (domain.AssembledTurn, bool, error) {
	turn, ok, err := s.Repo.Assemble(ctx, t, s.newID(), s.clock.Now())
	if err != nil {
		if errors.Is(err, domain.ErrClaimLost) {
			s.metrics.Flushes.WithLabelValues("claim_lost").Inc()
		}
		return domain.AssembledTurn{}, false, err
	}
	log := logger.C(ctx)
	if !ok {
		s.metrics.Flushes.WithLabelValues("noop").Inc()
		log.Debug().Str("key", t.Key.String()).Str("flush_id", t.FlushID).Msg("turns: empty flush")
		return domain.AssembledTurn{}, false, nil
	}

	s.metrics.Flushes.WithLabelValues("assembled").Inc()
	s.metrics.TurnSize.Observe(float64(len(turn.MessageIDs)))
	log.Info().
		Str("key", t.Key.String()).
		Str("turn_id", turn.TurnID).
		Str("flush_id", t.FlushID).
		Int("messages", len(turn.MessageIDs)).
		Msg("turns: assembled")

	// the outbox row is durable; the pipeline poller picks it up even if this publish is lost
	evt := domain.TurnAssembled{TurnID: turn.TurnID, ConversationID: turn.Key.ConversationID}
	if err := s.publish(ctx, domain.TopicTurnAssembled, evt); err != nil {
		log.Warn().Err(err).Str("turn_id", turn.TurnID).Msg("turns: publish turn.assembled failed")
	}
	return turn, true, nil
}

// Flush is Claim then Assemble; every non-error miss is ok=false
func (s *Svc) Flush(ctx context.Context, key domain.BufferKey) (domain.AssembledTurn, bool, error) {
	t, ok, err := s.Claim(ctx, key)
	if err != nil || !ok {
		return domain.AssembledTurn{}, false, err
	}
	turn, ok, err := s.Assemble(ctx, t)
	if errors.Is(err, domain.ErrClaimLost) {
		logger.C(ctx).Info().Str("key", key.String()).Str("flush_id", t.FlushID).Msg("turns: claim lost before drain")
		return domain.AssembledTurn{}, false, nil
	}
	return turn, ok, err
}
