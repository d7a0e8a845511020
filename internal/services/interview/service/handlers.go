package service

import (
	"context"
	"errors"

	"turnstile/internal/platform/bus"
	"turnstile/internal/platform/logger"
	"turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Register subscribes the pipeline to turn.assembled nudges and to conversation.ended
// the outbox stays the source of truth; a lost nudge only costs one poll interval
func (s *Svc) Register(r bus.Router) {
	r.Handle("interview.turn_assembled", turns.TopicTurnAssembled, s.onTurnAssembled)
	r.Handle("interview.conversation_ended", turns.TopicConversationEnded, s.onConversationEnded)
}

// onConversationEnded makes the step state terminal for ends that did not come through End
func (s *Svc) onConversationEnded(ctx context.Context, msg *message.Message) error {
	evt, err := bus.Decode[turns.ConversationEnded](msg)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("message_uuid", msg.UUID).Msg("interview: dropping malformed event")
		return nil
	}
	_, err = s.End(ctx, evt.ConversationID, evt.Reason)
	if errors.Is(err, domain.ErrNotFound) {
		logger.C(ctx).Info().Str("conversation_id", evt.ConversationID).Msg("interview: end for unknown conversation")
		return nil
	}
	return err
}

func (s *Svc) onTurnAssembled(ctx context.Context, msg *message.Message) error {
	evt, err := bus.Decode[turns.TurnAssembled](msg)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("message_uuid", msg.UUID).Msg("interview: dropping malformed event")
		return nil
	}
	logger.C(ctx).Debug().Str("turn_id", evt.TurnID).Str("conversation_id", evt.ConversationID).Msg("interview: turn assembled")
	s.Nudge()
	return nil
}
