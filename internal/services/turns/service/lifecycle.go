package service

import (
	"context"
	"strings"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
)

// EndConversation closes every key of the conversation
// later appends and signals are dropped; an in-flight flush still completes
func (s *Svc) EndConversation(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return perr.WithField(perr.InvalidArgf("conversation id is required"), "conversation_id")
	}
	n, err := s.Repo.EndConversation(ctx, conversationID, s.clock.Now())
	if err != nil {
		return err
	}
	logger.C(ctx).Info().Str("conversation_id", conversationID).Int("keys", n).Msg("turns: conversation closed")
	return nil
}

// IsEnded reports whether the conversation's keys were closed
func (s *Svc) IsEnded(ctx context.Context, conversationID string) (bool, error) {
	return s.Repo.IsEnded(ctx, conversationID)
}
