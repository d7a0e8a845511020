package domain

import (
	"context"

	turns "turnstile/internal/services/turns/domain"
)

// LifecyclePort starts, ends and reads conversations
type LifecyclePort interface {
	Start(ctx context.Context, in StartInput) (State, error)
	End(ctx context.Context, conversationID, reason string) (State, error)
	Get(ctx context.Context, conversationID string) (State, error)
	FindByChat(ctx context.Context, channel turns.Channel, chatRef string) (State, error)
}

// PipelinePort applies one assembled turn to its conversation
type PipelinePort interface {
	HandleTurn(ctx context.Context, turn turns.AssembledTurn) error
}

// WorkerPort runs the pipeline poll loop
type WorkerPort interface {
	Run(ctx context.Context) error
}
