package service

import (
	"context"

	"turnstile/internal/adapters/webchat"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	interview "turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"
)

// Deliver sends an interviewer reply over the candidate's channel
// web chat replies with no open socket are dropped; the widget refetches state on reconnect
func (s *Svc) Deliver(ctx context.Context, r interview.ReplyReady) error {
	if r.Text == "" {
		return nil
	}
	switch r.Channel {
	case turns.ChannelTelegram:
		if s.tg == nil {
			return perr.Newf(perr.ErrorCodeUnavailable, "telegram client not configured")
		}
		return s.tg.SendMessage(ctx, r.ChatRef, r.Text)
	case turns.ChannelWebChat:
		n := s.hub.Broadcast(r.ConversationID, webchat.Frame{
			Type:  webchat.FrameReply,
			Text:  r.Text,
			Step:  r.Step,
			Final: r.Final,
		})
		if n == 0 {
			logger.C(ctx).Debug().Str("conversation_id", r.ConversationID).Msg("channels: no socket for reply")
		}
		return nil
	}
	return perr.InvalidArgf("unknown channel %q", r.Channel)
}
