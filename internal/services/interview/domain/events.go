package domain

import turns "turnstile/internal/services/turns/domain"

// TopicReplyReady carries the interviewer's next message back to the channel adapters
const TopicReplyReady = "reply.ready"

// ReplyReady is one outbound message to a candidate
type ReplyReady struct {
	ConversationID string        `json:"conversation_id"`
	CandidateID    string        `json:"candidate_id"`
	Channel        turns.Channel `json:"channel"`
	ChatRef        string        `json:"chat_ref,omitempty"`
	Step           int           `json:"step"`
	Text           string        `json:"text"`
	Final          bool          `json:"final"`
}

// StartInput starts an interview conversation
type StartInput struct {
	CandidateID    string        `json:"candidate_id" validate:"required,nonblank,max=128"`
	ConversationID string        `json:"conversation_id" validate:"omitempty,max=128"`
	Channel        turns.Channel `json:"channel" validate:"required,oneof=telegram webchat"`
	ChatRef        string        `json:"chat_ref" validate:"required_if=Channel telegram,max=64"`
}

// EndInput ends an interview conversation
type EndInput struct {
	Reason string `json:"reason" validate:"omitempty,oneof=completed cancelled timeout withdrawn"`
}
