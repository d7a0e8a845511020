// Package domain defines the buffer, scheduler and assembler model of the turn aggregator
package domain

import (
	"fmt"
	"strings"
	"time"

	perr "turnstile/internal/platform/errors"
)

// BufferKey identifies one open turn: a candidate answering one interview step of one conversation
type BufferKey struct {
	CandidateID    string `json:"candidate_id" validate:"required,nonblank,max=128"`
	ConversationID string `json:"conversation_id" validate:"required,nonblank,max=128"`
	Step           int    `json:"interview_step" validate:"gte=0"`
}

// Validate rejects keys that cannot be stored
func (k BufferKey) Validate() error {
	switch {
	case strings.TrimSpace(k.CandidateID) == "":
		return perr.WithField(perr.InvalidArgf("candidate id is required"), "candidate_id")
	case strings.TrimSpace(k.ConversationID) == "":
		return perr.WithField(perr.InvalidArgf("conversation id is required"), "conversation_id")
	case k.Step < 0:
		return perr.WithField(perr.InvalidArgf("interview step must be >= 0"), "interview_step")
	case strings.ContainsRune(k.CandidateID, '\x00') || strings.ContainsRune(k.ConversationID, '\x00'):
		return perr.InvalidArgf("ids must not contain NUL")
	}
	return nil
}

func (k BufferKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.CandidateID, k.ConversationID, k.Step)
}

// Channel is the transport a message arrived on
type Channel string

// Channels
const (
	ChannelTelegram Channel = "telegram"
	ChannelWebChat  Channel = "webchat"
)

// Kind distinguishes typed text from transcribed voice
type Kind string

// Kinds
const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
)

// Activity is a liveness signal type
type Activity string

// Activities
const (
	ActivityTyping    Activity = "typing"
	ActivityRecording Activity = "recording"
)

// Valid reports whether a is a known activity
func (a Activity) Valid() bool { return a == ActivityTyping || a == ActivityRecording }

// BufferedMessage is one raw candidate message waiting for its turn to flush
// it is immutable after insert and removed only by a drain
type BufferedMessage struct {
	MessageID  string    `json:"message_id"`
	Key        BufferKey `json:"key"`
	Seq        int64     `json:"seq"`
	ArrivedAt  time.Time `json:"arrived_at"`
	Kind       Kind      `json:"kind"`
	Text       string    `json:"text"`
	PayloadRef string    `json:"payload_ref,omitempty"`
	Channel    Channel   `json:"channel"`
}

// LivenessSignal moves a key's deadline and nothing else
type LivenessSignal struct {
	Key        BufferKey
	Activity   Activity
	ObservedAt time.Time
}

// State is the scheduler state of one key
type State string

// States
//
//	idle --arm--> armed --claim--> claimed --release--> idle | armed
//	any --end conversation--> closed (claimed keeps its ticket until release)
const (
	StateIdle    State = "idle"
	StateArmed   State = "armed"
	StateClaimed State = "claimed"
	StateClosed  State = "closed"
)

// FlushTicket is the exclusive right to drain one key
// Watermark is the highest seq that belongs to the turn being flushed
type FlushTicket struct {
	Key         BufferKey `json:"key"`
	FlushID     string    `json:"flush_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	Watermark   int64     `json:"watermark"`
	LeaseUntil  time.Time `json:"lease_until"`
}

// KeyState is the durable scheduler record of one key
type KeyState struct {
	Key       BufferKey    `json:"key"`
	State     State        `json:"state"`
	DueAt     time.Time    `json:"due_at"`
	Rearmed   bool         `json:"rearmed"`
	LastSeq   int64        `json:"last_seq"`
	Ticket    *FlushTicket `json:"ticket,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TurnStatus tracks an assembled turn through the interview pipeline
type TurnStatus string

// Turn statuses
const (
	TurnPending TurnStatus = "pending"
	TurnDone    TurnStatus = "done"
	TurnDropped TurnStatus = "dropped"
)

// AssembledTurn is the immutable result of one flush, queued for the pipeline
type AssembledTurn struct {
	TurnID        string     `json:"turn_id"`
	Seq           int64      `json:"seq"`
	Key           BufferKey  `json:"key"`
	FlushID       string     `json:"flush_id"`
	Text          string     `json:"text"`
	MessageIDs    []string   `json:"message_ids"`
	AssembledAt   time.Time  `json:"assembled_at"`
	Status        TurnStatus `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LeaseUntil    time.Time  `json:"lease_until"`
	LastError     string     `json:"last_error,omitempty"`
}

// AppendResult reports what an append did
type AppendResult struct {
	Seq       int64
	Duplicate bool
	Dropped   bool
	DueAt     time.Time
}

// ArmResult reports what an arm did
type ArmResult struct {
	State   State
	DueAt   time.Time
	Dropped bool
}

// TurnSeparator joins message texts inside one turn
const TurnSeparator = "\n"

// JoinTurn concatenates message texts in the order given, skipping blanks
func JoinTurn(msgs []BufferedMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if t := strings.TrimSpace(m.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, TurnSeparator)
}
