// Package domain defines the interview pipeline model: per-conversation step state and its collaborators
package domain

import (
	"context"
	"time"

	turns "turnstile/internal/services/turns/domain"
)

// Status is the lifecycle of one interview conversation
type Status string

// Statuses
const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Exchange is one answered question
type Exchange struct {
	Step     int       `json:"step"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	TurnID   string    `json:"turn_id,omitempty"`
	At       time.Time `json:"at"`
}

// State is the InterviewStepState of a conversation
// LastTurnID makes turn application idempotent under redelivery
type State struct {
	ConversationID string        `json:"conversation_id"`
	CandidateID    string        `json:"candidate_id"`
	Channel        turns.Channel `json:"channel"`
	ChatRef        string        `json:"chat_ref,omitempty"`
	Step           int           `json:"step"`
	Status         Status        `json:"status"`
	Question       string        `json:"question"`
	History        []Exchange    `json:"history"`
	FinalScore     *float64      `json:"final_score,omitempty"`
	EndReason      string        `json:"end_reason,omitempty"`
	LastTurnID     string        `json:"last_turn_id,omitempty"`
	Version        int64         `json:"version"`
	StartedAt      time.Time     `json:"started_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Active reports whether turns may still be applied
func (s State) Active() bool { return s.Status == StatusActive }

// Key is the buffer key new candidate messages of this conversation belong to
func (s State) Key() turns.BufferKey {
	return turns.BufferKey{CandidateID: s.CandidateID, ConversationID: s.ConversationID, Step: s.Step}
}

// Reply is the collaborator decision for one answer: either a next question or a final score
type Reply struct {
	NextQuestion string   `json:"next_question,omitempty"`
	FinalScore   *float64 `json:"final_score,omitempty"`
	Closing      string   `json:"closing,omitempty"`
}

// Final reports whether the interview is over
func (r Reply) Final() bool { return r.FinalScore != nil }

// CollabInput is everything the AI collaborator sees for one turn
type CollabInput struct {
	Script   Script
	Step     int
	History  []Exchange
	Question string
	Answer   string
}

// Collaborator is the AI interviewer; it must be safe for concurrent use
type Collaborator interface {
	Next(ctx context.Context, in CollabInput) (Reply, error)
}

// Script is the configured interview: an opening question, follow-ups and a closing line
type Script struct {
	Name      string   `yaml:"name" json:"name"`
	Role      string   `yaml:"role" json:"role"`
	Opening   string   `yaml:"opening" json:"opening"`
	Questions []string `yaml:"questions" json:"questions"`
	Closing   string   `yaml:"closing" json:"closing"`
	// PassScore is the minimum final score reported as a pass by the scripted collaborator
	PassScore float64 `yaml:"pass_score" json:"pass_score"`
}

// QuestionAt returns the scripted question for step, step 0 being the opening
func (s Script) QuestionAt(step int) (string, bool) {
	if step == 0 {
		return s.Opening, s.Opening != ""
	}
	if step-1 < len(s.Questions) {
		return s.Questions[step-1], true
	}
	return "", false
}

// Steps is the number of scripted questions including the opening
func (s Script) Steps() int { return 1 + len(s.Questions) }
