package service

import (
	"context"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	"turnstile/internal/services/channels/domain"
	turns "turnstile/internal/services/turns/domain"
)

// WebMessage buffers one web chat message under the conversation's current step
func (s *Svc) WebMessage(ctx context.Context, in domain.WebMessageInput) (domain.Accepted, error) {
	text := Normalize(in.Text)
	if text == "" {
		return domain.Accepted{}, perr.WithField(perr.InvalidArgf("text is blank"), "text")
	}
	st, err := s.Resolve(ctx, in.ConversationID, in.CandidateID)
	if err != nil {
		return domain.Accepted{}, err
	}
	id := in.MessageID
	if id == "" {
		id = s.newID()
	}
	evt := turns.MessageBuffered{
		CandidateID:    st.CandidateID,
		ConversationID: st.ConversationID,
		InterviewStep:  st.Step,
		MessageID:      id,
		ArrivedAt:      s.clock.Now(),
		Kind:           turns.KindText,
		Text:           text,
		Channel:        turns.ChannelWebChat,
	}
	if err := s.sink.Message(ctx, evt); err != nil {
		return domain.Accepted{}, err
	}
	logger.C(ctx).Debug().Str("conversation_id", st.ConversationID).Str("message_id", id).Int("step", st.Step).Msg("channels: web message buffered")
	return domain.Accepted{ConversationID: st.ConversationID, MessageID: id, Step: st.Step}, nil
}

// WebActivity forwards a typing or recording indicator
func (s *Svc) WebActivity(ctx context.Context, in domain.WebActivityInput) error {
	act := turns.Activity(in.Activity)
	if !act.Valid() {
		return perr.WithField(perr.InvalidArgf("unknown activity %q", in.Activity), "activity")
	}
	st, err := s.Resolve(ctx, in.ConversationID, in.CandidateID)
	if err != nil {
		return err
	}
	return s.sink.Activity(ctx, turns.ActivitySignal{
		CandidateID:    st.CandidateID,
		ConversationID: st.ConversationID,
		InterviewStep:  st.Step,
		ActivityType:   act,
		ObservedAt:     s.clock.Now(),
	})
}
