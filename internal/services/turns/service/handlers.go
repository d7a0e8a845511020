package service

import (
	"context"

	"turnstile/internal/platform/bus"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	"turnstile/internal/services/turns/domain"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Router is the registration surface of the event bus
type Router = bus.Router

// Register subscribes the aggregator to its inbound topics
// every handler is safe under redelivery
func (s *Svc) Register(r Router) {
	r.Handle("turns.message_buffered", domain.TopicMessageBuffered, s.onMessageBuffered)
	r.Handle("turns.activity_signal", domain.TopicActivitySignal, s.onActivitySignal)
	r.Handle("turns.conversation_ended", domain.TopicConversationEnded, s.onConversationEnded)
	r.Handle("turns.flush_due", domain.TopicFlushDue, s.onFlushDue)
}

func (s *Svc) onMessageBuffered(ctx context.Context, msg *message.Message) error {
	evt, err := bus.Decode[domain.MessageBuffered](msg)
	if err != nil {
		return ack(ctx, msg, err)
	}
	ctx = logger.WithRequest(ctx, "", evt.ConversationID)
	_, err = s.Append(ctx, evt.Message())
	return ack(ctx, msg, err)
}

func (s *Svc) onActivitySignal(ctx context.Context, msg *message.Message) error {
	evt, err := bus.Decode[domain.ActivitySignal](msg)
	if err != nil {
		return ack(ctx, msg, err)
	}
	ctx = logger.WithRequest(ctx, "", evt.ConversationID)
	_, err = s.OnActivity(ctx, evt.Signal())
	return ack(ctx, msg, err)
}

func (s *Svc) onConversationEnded(ctx context.Context, msg *message.Message) error {
	evt, err := bus.Decode[domain.ConversationEnded](msg)
	if err != nil {
		return ack(ctx, msg, err)
	}
	ctx = logger.WithRequest(ctx, "", evt.ConversationID)
	return ack(ctx, msg, s.EndConversation(ctx, evt.ConversationID))
}

func (s *Svc) onFlushDue(ctx context.Context, msg *message.Message) error {
	evt, err := bus.Decode[domain.FlushDue](msg)
	if err != nil {
		return ack(ctx, msg, err)
	}
	ctx = logger.WithRequest(ctx, "", evt.Key.ConversationID)
	_, _, err = s.Flush(ctx, evt.Key)
	return ack(ctx, msg, err)
}

// ack decides between acknowledging and redelivering
// input that can never succeed is logged and acked; anything else is returned for retry
func ack(ctx context.Context, msg *message.Message, err error) error {
	if err == nil {
		return nil
	}
	switch perr.CodeOf(err) {
	case perr.ErrorCodeJSON, perr.ErrorCodeInvalidArgument, perr.ErrorCodeValidation:
		logger.C(ctx).Warn().Err(err).Str("message_uuid", msg.UUID).Msg("turns: dropping malformed event")
		return nil
	}
	return err
}
