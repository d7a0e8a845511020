// Package repo provides the buffer store behind the turn aggregator
// two backends share one contract: Postgres for multi-worker deployments and
// pebble for single-node deployments and tests
package repo

import (
	"context"
	"time"

	"turnstile/internal/services/turns/domain"
)

// Repo is the keyed buffer store
// every mutation is scoped to one key (or one conversation) and is linearizable per key;
// callers pass now so scheduling never reads a clock of its own
type Repo interface {
	// Content: idempotent on message id; a fresh insert arms the key
	Append(ctx context.Context, msg domain.BufferedMessage, now time.Time, quiet time.Duration) (domain.AppendResult, error)
	HasBuffer(ctx context.Context, key domain.BufferKey) (bool, error)
	Pending(ctx context.Context, key domain.BufferKey) ([]domain.BufferedMessage, error)

	// Scheduler
	Arm(ctx context.Context, key domain.BufferKey, now time.Time, quiet time.Duration) (domain.ArmResult, error)
	KeyState(ctx context.Context, key domain.BufferKey) (domain.KeyState, bool, error)
	DueKeys(ctx context.Context, now time.Time, limit int) ([]domain.KeyState, error)
	Claim(ctx context.Context, key domain.BufferKey, flushID string, now time.Time, lease time.Duration) (domain.FlushTicket, domain.ClaimOutcome, error)

	// Drain removes messages up to the ticket watermark and releases the claim in one atomic step
	Drain(ctx context.Context, t domain.FlushTicket, now time.Time) ([]domain.BufferedMessage, error)
	// Assemble is Drain plus the outbox insert, still one atomic step
	Assemble(ctx context.Context, t domain.FlushTicket, turnID string, now time.Time) (domain.AssembledTurn, bool, error)

	// Lifecycle
	EndConversation(ctx context.Context, conversationID string, now time.Time) (int, error)
	IsEnded(ctx context.Context, conversationID string) (bool, error)

	// Outbox
	LeaseTurns(ctx context.Context, n int, leaseFor time.Duration, now time.Time) ([]domain.AssembledTurn, error)
	GetTurn(ctx context.Context, turnID string) (domain.AssembledTurn, error)
	CompleteTurn(ctx context.Context, turnID string, status domain.TurnStatus, lastErr string, now time.Time) error
	RetryTurn(ctx context.Context, turnID string, next time.Time, lastErr string) error
	ListTurns(ctx context.Context, conversationID string, limit int) ([]domain.AssembledTurn, error)
}

// newTurn builds the outbox row for a drained batch
func newTurn(t domain.FlushTicket, turnID string, msgs []domain.BufferedMessage, now time.Time) domain.AssembledTurn {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MessageID
	}
	return domain.AssembledTurn{
		TurnID:        turnID,
		Key:           t.Key,
		FlushID:       t.FlushID,
		Text:          domain.JoinTurn(msgs),
		MessageIDs:    ids,
		AssembledAt:   now,
		Status:        domain.TurnPending,
		NextAttemptAt: now,
	}
}
