package domain

import perr "turnstile/internal/platform/errors"

// Sentinels shared by both store backends
var (
	// ErrClaimLost means the ticket no longer owns the key (lease expired and another worker took it)
	ErrClaimLost = perr.New(perr.ErrorCodeConflict, "flush claim lost")
	// ErrConversationEnded means the conversation is terminal and the event was dropped
	ErrConversationEnded = perr.New(perr.ErrorCodeConflict, "conversation ended")
	// ErrTurnNotFound means the outbox has no such turn
	ErrTurnNotFound = perr.New(perr.ErrorCodeNotFound, "turn not found")
)
