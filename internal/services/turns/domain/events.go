package domain

import "time"

// Bus topics
const (
	TopicMessageBuffered   = "message.buffered"
	TopicActivitySignal    = "activity.signal"
	TopicConversationEnded = "conversation.ended"
	TopicFlushDue          = "flush.due"
	TopicTurnAssembled     = "turn.assembled"
)

// MessageBuffered is the normalized "candidate said X" fact from a channel adapter
type MessageBuffered struct {
	CandidateID    string    `json:"candidate_id" validate:"required"`
	ConversationID string    `json:"conversation_id" validate:"required"`
	InterviewStep  int       `json:"interview_step" validate:"gte=0"`
	MessageID      string    `json:"message_id" validate:"required"`
	ArrivedAt      time.Time `json:"arrived_at"`
	Kind           Kind      `json:"kind"`
	Text           string    `json:"text"`
	PayloadRef     string    `json:"payload_ref,omitempty"`
	Channel        Channel   `json:"channel"`
}

// Key returns the buffer key of the event
func (e MessageBuffered) Key() BufferKey {
	return BufferKey{CandidateID: e.CandidateID, ConversationID: e.ConversationID, Step: e.InterviewStep}
}

// Message converts the event into a storable message; Seq is assigned by the store
func (e MessageBuffered) Message() BufferedMessage {
	kind := e.Kind
	if kind == "" {
		kind = KindText
	}
	return BufferedMessage{
		MessageID:  e.MessageID,
		Key:        e.Key(),
		ArrivedAt:  e.ArrivedAt,
		Kind:       kind,
		Text:       e.Text,
		PayloadRef: e.PayloadRef,
		Channel:    e.Channel,
	}
}

// ActivitySignal is the typing/recording fact
type ActivitySignal struct {
	CandidateID    string    `json:"candidate_id" validate:"required"`
	ConversationID string    `json:"conversation_id" validate:"required"`
	InterviewStep  int       `json:"interview_step" validate:"gte=0"`
	ActivityType   Activity  `json:"activity_type" validate:"required,oneof=typing recording"`
	ObservedAt     time.Time `json:"observed_at"`
}

// Signal converts the event into a liveness signal
func (e ActivitySignal) Signal() LivenessSignal {
	return LivenessSignal{
		Key:        BufferKey{CandidateID: e.CandidateID, ConversationID: e.ConversationID, Step: e.InterviewStep},
		Activity:   e.ActivityType,
		ObservedAt: e.ObservedAt,
	}
}

// ConversationEnded closes every key of a conversation
type ConversationEnded struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Reason         string `json:"reason,omitempty"`
}

// FlushDue is a candidate flush intent for one key; it may be duplicated or stale
type FlushDue struct {
	Key   BufferKey `json:"key"`
	DueAt time.Time `json:"due_at"`
}

// TurnAssembled announces a new outbox row
type TurnAssembled struct {
	TurnID         string `json:"turn_id"`
	ConversationID string `json:"conversation_id"`
}

// StatusQuery asks whether a key holds unflushed content
type StatusQuery struct {
	CandidateID    string `json:"candidate_id" validate:"required,nonblank,max=128"`
	ConversationID string `json:"conversation_id" validate:"required,nonblank,max=128"`
	InterviewStep  int    `json:"interview_step" validate:"gte=0"`
}

// Key returns the buffer key of the query
func (q StatusQuery) Key() BufferKey {
	return BufferKey{CandidateID: q.CandidateID, ConversationID: q.ConversationID, Step: q.InterviewStep}
}

// StatusView is the "still composing" answer
type StatusView struct {
	HasBuffer bool      `json:"has_buffer"`
	State     State     `json:"state"`
	DueAt     time.Time `json:"due_at,omitempty"`
	Pending   int       `json:"pending"`
}
