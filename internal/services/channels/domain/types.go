// Package domain defines the candidate-facing channel surface: web chat and Telegram
package domain

import (
	"context"

	"turnstile/internal/adapters/telegram"
	interview "turnstile/internal/services/interview/domain"
)

// WebMessageInput is one web chat message from a candidate
type WebMessageInput struct {
	ConversationID string `json:"conversation_id" validate:"required,nonblank,max=128"`
	CandidateID    string `json:"candidate_id" validate:"required,nonblank,max=128"`
	MessageID      string `json:"message_id" validate:"omitempty,max=128"`
	Text           string `json:"text" validate:"required,max=4000"`
}

// WebActivityInput is a typing or recording indicator from the web chat widget
type WebActivityInput struct {
	ConversationID string `json:"conversation_id" validate:"required,nonblank,max=128"`
	CandidateID    string `json:"candidate_id" validate:"required,nonblank,max=128"`
	Activity       string `json:"activity" validate:"required,oneof=typing recording"`
}

// Accepted acknowledges an inbound message once it is handed to the aggregator
type Accepted struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Step           int    `json:"step"`
}

// WebPort is the web chat ingress
type WebPort interface {
	WebMessage(ctx context.Context, in WebMessageInput) (Accepted, error)
	WebActivity(ctx context.Context, in WebActivityInput) error
}

// TelegramPort is the Telegram webhook ingress
type TelegramPort interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// DeliveryPort sends interviewer replies back over the candidate's channel
type DeliveryPort interface {
	Deliver(ctx context.Context, r interview.ReplyReady) error
}
