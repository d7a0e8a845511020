package service

import (
	"context"
	"errors"
	"time"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	"turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"
)

// HandleTurn applies one assembled turn to its conversation and completes it in the outbox
// a returned error leaves the turn pending; the worker schedules the retry
func (s *Svc) HandleTurn(ctx context.Context, turn turns.AssembledTurn) error {
	conv := turn.Key.ConversationID
	log := logger.C(ctx).With().Str("conversation_id", conv).Str("turn_id", turn.TurnID).Logger()

	st, err := s.Repo.Get(ctx, conv)
	if errors.Is(err, domain.ErrNotFound) {
		return s.drop(ctx, turn, "unknown conversation")
	}
	if err != nil {
		return err
	}
	if st.LastTurnID == turn.TurnID {
		// applied before a crash or lost completion; resend what the candidate should see
		log.Debug().Msg("interview: turn already applied")
		s.resend(ctx, st)
		if !st.Active() {
			if err := s.turns.EndConversation(ctx, conv); err != nil {
				return err
			}
		}
		return s.complete(ctx, turn)
	}
	if !st.Active() {
		return s.drop(ctx, turn, "conversation "+string(st.Status))
	}
	ended, err := s.turns.IsEnded(ctx, conv)
	if err != nil {
		return err
	}
	if ended {
		// conversation.ended reached the aggregator before the state
		if _, err := s.End(ctx, conv, "cancelled"); err != nil {
			return err
		}
		return s.drop(ctx, turn, "conversation ended")
	}
	if turn.Key.CandidateID != st.CandidateID {
		return s.drop(ctx, turn, "candidate mismatch")
	}
	if turn.Key.Step < st.Step {
		return s.amend(ctx, st, turn)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	started := time.Now()
	rep, err := s.ai.Next(ctx, domain.CollabInput{
		Script:   s.script,
		Step:     st.Step,
		History:  st.History,
		Question: st.Question,
		Answer:   turn.Text,
	})
	s.metrics.AILatency.Observe(time.Since(started).Seconds())
	if err != nil {
		return perr.Wrapf(err, perr.CodeOf(err), "collaborator step %d", st.Step)
	}
	if !rep.Final() && rep.NextQuestion == "" {
		return perr.Newf(perr.ErrorCodeUnavailable, "collaborator returned neither a question nor a score")
	}

	now := s.clock.Now()
	next := st
	next.History = append(append([]domain.Exchange{}, st.History...), domain.Exchange{
		Step:     st.Step,
		Question: st.Question,
		Answer:   turn.Text,
		TurnID:   turn.TurnID,
		At:       now,
	})
	next.LastTurnID = turn.TurnID
	next.Version++
	next.UpdatedAt = now
	text := rep.NextQuestion
	if rep.Final() {
		next.Status = domain.StatusCompleted
		next.EndReason = "completed"
		next.FinalScore = rep.FinalScore
		next.Question = ""
		text = rep.Closing
		if text == "" {
			text = s.script.Closing
		}
	} else {
		next.Step++
		next.Question = rep.NextQuestion
	}
	if err := s.Repo.Save(ctx, next); err != nil {
		return err
	}
	s.reply(ctx, next, text, rep.Final())

	if rep.Final() {
		log.Info().Float64("final_score", *rep.FinalScore).Int("steps", len(next.History)).Msg("interview: completed")
		if err := s.turns.EndConversation(ctx, conv); err != nil {
			log.Warn().Err(err).Msg("interview: closing buffer keys failed")
		}
	}
	return s.complete(ctx, turn)
}

// amend folds a late fragment into the answer of a step that already advanced
func (s *Svc) amend(ctx context.Context, st domain.State, turn turns.AssembledTurn) error {
	next := st
	next.History = append([]domain.Exchange{}, st.History...)
	for i := len(next.History) - 1; i >= 0; i-- {
		if next.History[i].Step == turn.Key.Step {
			next.History[i].Answer += turns.TurnSeparator + turn.Text
			break
		}
	}
	next.LastTurnID = turn.TurnID
	next.Version++
	next.UpdatedAt = s.clock.Now()
	if err := s.Repo.Save(ctx, next); err != nil {
		return err
	}
	logger.C(ctx).Info().Str("conversation_id", st.ConversationID).Int("step", turn.Key.Step).Msg("interview: late fragment amended")
	s.metrics.Pipeline.WithLabelValues("amended").Inc()
	return s.turns.CompleteTurn(ctx, turn.TurnID, turns.TurnDone, "")
}

func (s *Svc) resend(ctx context.Context, st domain.State) {
	if st.Active() {
		s.reply(ctx, st, st.Question, false)
		return
	}
	if st.Status == domain.StatusCompleted {
		s.reply(ctx, st, s.script.Closing, true)
	}
}

func (s *Svc) complete(ctx context.Context, turn turns.AssembledTurn) error {
	if err := s.turns.CompleteTurn(ctx, turn.TurnID, turns.TurnDone, ""); err != nil {
		return err
	}
	s.metrics.Pipeline.WithLabelValues("done").Inc()
	return nil
}

func (s *Svc) drop(ctx context.Context, turn turns.AssembledTurn, reason string) error {
	logger.C(ctx).Info().
		Str("conversation_id", turn.Key.ConversationID).
		Str("turn_id", turn.TurnID).
		Str("reason", reason).
		Msg("interview: turn dropped")
	if err := s.turns.CompleteTurn(ctx, turn.TurnID, turns.TurnDropped, reason); err != nil {
		return err
	}
	s.metrics.Pipeline.WithLabelValues("dropped").Inc()
	return nil
}
