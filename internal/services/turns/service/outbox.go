package service

import (
	"context"
	"time"

	"turnstile/internal/services/turns/domain"
)

// LeaseTurns leases the ready head turn of up to n conversations
func (s *Svc) LeaseTurns(ctx context.Context, n int, leaseFor time.Duration) ([]domain.AssembledTurn, error) {
	return s.Repo.LeaseTurns(ctx, n, leaseFor, s.clock.Now())
}

// GetTurn loads one outbox row
func (s *Svc) GetTurn(ctx context.Context, turnID string) (domain.AssembledTurn, error) {
	return s.Repo.GetTurn(ctx, turnID)
}

// CompleteTurn marks a turn done or dropped and unblocks the next turn of its conversation
func (s *Svc) CompleteTurn(ctx context.Context, turnID string, status domain.TurnStatus, lastErr string) error {
	return s.Repo.CompleteTurn(ctx, turnID, status, lastErr, s.clock.Now())
}

// RetryTurn schedules the turn again after backoff, keeping its text
func (s *Svc) RetryTurn(ctx context.Context, turnID string, backoff time.Duration, lastErr string) error {
	return s.Repo.RetryTurn(ctx, turnID, s.clock.Now().Add(backoff), lastErr)
}

// ListTurns returns the pending queue of a conversation
func (s *Svc) ListTurns(ctx context.Context, conversationID string, limit int) ([]domain.AssembledTurn, error) {
	return s.Repo.ListTurns(ctx, conversationID, limit)
}
