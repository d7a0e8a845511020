package service

import (
	"context"
	"errors"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	"turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"
)

// saveAttempts bounds optimistic retries when End races the pipeline
const saveAttempts = 3

// Start creates a conversation at step 0 and sends the opening question
// starting an already active conversation for the same candidate returns it unchanged
func (s *Svc) Start(ctx context.Context, in domain.StartInput) (domain.State, error) {
	if in.CandidateID == "" {
		return domain.State{}, perr.InvalidArgf("candidate_id is required")
	}
	if in.Channel != turns.ChannelTelegram && in.Channel != turns.ChannelWebChat {
		return domain.State{}, perr.InvalidArgf("unknown channel %q", in.Channel)
	}
	if in.ConversationID == "" {
		in.ConversationID = s.newID()
	}
	opening, ok := s.script.QuestionAt(0)
	if !ok {
		return domain.State{}, perr.Newf(perr.ErrorCodeUnavailable, "interview script %q has no opening question", s.script.Name)
	}

	now := s.clock.Now()
	st := domain.State{
		ConversationID: in.ConversationID,
		CandidateID:    in.CandidateID,
		Channel:        in.Channel,
		ChatRef:        in.ChatRef,
		Status:         domain.StatusActive,
		Question:       opening,
		History:        []domain.Exchange{},
		Version:        1,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Repo.Create(ctx, st); err != nil {
		if !errors.Is(err, domain.ErrExists) {
			return domain.State{}, err
		}
		cur, gerr := s.Repo.Get(ctx, in.ConversationID)
		if gerr == nil && cur.CandidateID == in.CandidateID && cur.Active() {
			return cur, nil
		}
		return domain.State{}, err
	}

	logger.C(ctx).Info().
		Str("conversation_id", st.ConversationID).
		Str("candidate_id", st.CandidateID).
		Str("channel", string(st.Channel)).
		Msg("interview: started")
	s.reply(ctx, st, opening, false)
	return st, nil
}

// End marks a conversation terminal and closes its buffer keys
// ending a terminal conversation is a no-op that still closes the keys
func (s *Svc) End(ctx context.Context, conversationID, reason string) (domain.State, error) {
	if reason == "" {
		reason = "cancelled"
	}
	var st domain.State
	for i := 0; ; i++ {
		cur, err := s.Repo.Get(ctx, conversationID)
		if err != nil {
			return domain.State{}, err
		}
		st = cur
		if !cur.Active() {
			break
		}
		st.Status = domain.StatusCancelled
		if reason == "completed" {
			st.Status = domain.StatusCompleted
		}
		st.EndReason = reason
		st.Question = ""
		st.Version++
		st.UpdatedAt = s.clock.Now()
		err = s.Repo.Save(ctx, st)
		if err == nil {
			logger.C(ctx).Info().Str("conversation_id", conversationID).Str("reason", reason).Msg("interview: ended")
			break
		}
		if !errors.Is(err, domain.ErrVersion) || i+1 >= saveAttempts {
			return domain.State{}, err
		}
	}
	if err := s.turns.EndConversation(ctx, conversationID); err != nil {
		return st, err
	}
	return st, nil
}

// Get returns the state and history of a conversation
func (s *Svc) Get(ctx context.Context, conversationID string) (domain.State, error) {
	return s.Repo.Get(ctx, conversationID)
}

// FindByChat resolves the active conversation of a channel chat
func (s *Svc) FindByChat(ctx context.Context, channel turns.Channel, chatRef string) (domain.State, error) {
	return s.Repo.FindByChat(ctx, channel, chatRef)
}
