// Package repo persists interview step state in Postgres or pebble
package repo

import (
	"context"

	"turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"
)

// Repo stores one State per conversation
// Save is optimistic: it succeeds only when the stored Version equals s.Version-1
type Repo interface {
	Create(ctx context.Context, s domain.State) error
	Get(ctx context.Context, conversationID string) (domain.State, error)
	FindByChat(ctx context.Context, channel turns.Channel, chatRef string) (domain.State, error)
	Save(ctx context.Context, s domain.State) error
}
