package domain

import (
	"context"
	"time"
)

// BufferPort is the content side used by channel adapters and the bus
type BufferPort interface {
	Append(ctx context.Context, msg BufferedMessage) (AppendResult, error)
	HasBuffer(ctx context.Context, key BufferKey) (bool, error)
}

// ActivityPort extends a key's quiet period without touching content
type ActivityPort interface {
	OnActivity(ctx context.Context, sig LivenessSignal) (ArmResult, error)
}

// FlushPort is the scheduler and assembler surface driven by flush.due events
// Flush resolves a lost claim or an empty drain to ok=false without error
type FlushPort interface {
	Claim(ctx context.Context, key BufferKey) (FlushTicket, bool, error)
	Assemble(ctx context.Context, t FlushTicket) (AssembledTurn, bool, error)
	Flush(ctx context.Context, key BufferKey) (AssembledTurn, bool, error)
}

// LifecyclePort reacts to conversation termination
// IsEnded is true once EndConversation ran, whoever delivered the end
type LifecyclePort interface {
	EndConversation(ctx context.Context, conversationID string) error
	IsEnded(ctx context.Context, conversationID string) (bool, error)
}

// StatusPort is the read-only status surface for "still typing" indicators and admin tools
type StatusPort interface {
	HasBuffer(ctx context.Context, key BufferKey) (bool, error)
	KeyState(ctx context.Context, key BufferKey) (KeyState, bool, error)
	Pending(ctx context.Context, key BufferKey) ([]BufferedMessage, error)
}

// OutboxPort hands assembled turns to the interview pipeline in per-conversation order
type OutboxPort interface {
	LeaseTurns(ctx context.Context, n int, leaseFor time.Duration) ([]AssembledTurn, error)
	GetTurn(ctx context.Context, turnID string) (AssembledTurn, error)
	CompleteTurn(ctx context.Context, turnID string, status TurnStatus, lastErr string) error
	RetryTurn(ctx context.Context, turnID string, backoff time.Duration, lastErr string) error
	ListTurns(ctx context.Context, conversationID string, limit int) ([]AssembledTurn, error)
}

// SweeperPort finds due keys and emits flush intents
type SweeperPort interface {
	Sweep(ctx context.Context) (int, error)
}

// WorkerPort runs the long-lived sweeper loop
type WorkerPort interface {
	Run(ctx context.Context) error
}
