package service

import (
	"context"

	"turnstile/internal/platform/bus"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	interview "turnstile/internal/services/interview/domain"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Register subscribes delivery to reply.ready
func (s *Svc) Register(r bus.Router) {
	r.Handle("channels.reply_ready", interview.TopicReplyReady, s.onReplyReady)
}

func (s *Svc) onReplyReady(ctx context.Context, msg *message.Message) error {
	evt, err := bus.Decode[interview.ReplyReady](msg)
	if err != nil {
		return ack(ctx, msg, err)
	}
	ctx = logger.WithRequest(ctx, "", evt.ConversationID)
	return ack(ctx, msg, s.Deliver(ctx, evt))
}

// ack drops replies that can never be delivered and redelivers the rest
func ack(ctx context.Context, msg *message.Message, err error) error {
	if err == nil {
		return nil
	}
	switch perr.CodeOf(err) {
	case perr.ErrorCodeJSON, perr.ErrorCodeInvalidArgument, perr.ErrorCodeValidation, perr.ErrorCodeForbidden:
		logger.C(ctx).Warn().Err(err).Str("message_uuid", msg.UUID).Msg("channels: dropping undeliverable reply")
		return nil
	}
	return err
}
