// Package service normalizes candidate messages from every channel and delivers interviewer replies
package service

import (
	"context"
	"io"

	"turnstile/internal/adapters/telegram"
	"turnstile/internal/adapters/transcribe"
	"turnstile/internal/adapters/webchat"
	"turnstile/internal/modkit"
	"turnstile/internal/platform/text"
	ptime "turnstile/internal/platform/time"
	"turnstile/internal/services/channels/domain"
	interview "turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"

	"github.com/google/uuid"
)

// Service defines the channels service contract
type Service interface {
	domain.WebPort
	domain.TelegramPort
	domain.DeliveryPort
}

// Conversations resolves which conversation and step a message belongs to
type Conversations interface {
	Get(ctx context.Context, conversationID string) (interview.State, error)
	FindByChat(ctx context.Context, channel turns.Channel, chatRef string) (interview.State, error)
}

// Telegram is the slice of the Bot API client the service uses
type Telegram interface {
	SendMessage(ctx context.Context, chatRef, text string) error
	GetFile(ctx context.Context, fileID string) (telegram.File, error)
	Download(ctx context.Context, filePath string) (io.ReadCloser, error)
}

// Options carries the adapters; Telegram may be nil when no bot is configured
type Options struct {
	Conversations Conversations
	Sink          Sink
	Telegram      Telegram
	Transcriber   transcribe.Transcriber
	Hub           *webchat.Hub
}

// Svc implements the channels service
type Svc struct {
	convs Conversations
	sink  Sink
	tg    Telegram
	stt   transcribe.Transcriber
	hub   *webchat.Hub
	clock ptime.Clock
	newID func() string
}

var _ Service = (*Svc)(nil)

// New constructs the channels service
func New(deps modkit.Deps, o Options) *Svc {
	if o.Conversations == nil || o.Sink == nil {
		panic("channels.Service requires conversations and a sink")
	}
	if o.Transcriber == nil {
		o.Transcriber = transcribe.Disabled{}
	}
	if o.Hub == nil {
		o.Hub = webchat.NewHub(nil)
	}
	return &Svc{
		convs: o.Conversations,
		sink:  o.Sink,
		tg:    o.Telegram,
		stt:   o.Transcriber,
		hub:   o.Hub,
		clock: deps.Now(),
		newID: uuid.NewString,
	}
}

// Hub exposes the socket hub for the websocket endpoint
func (s *Svc) Hub() *webchat.Hub { return s.hub }

// Normalize cleans candidate text; blank or invisible input comes back empty
func Normalize(s string) string { return text.Clean(s) }

// Resolve checks the conversation is active and owned by the candidate
func (s *Svc) Resolve(ctx context.Context, conversationID, candidateID string) (interview.State, error) {
	st, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return st, err
	}
	if st.CandidateID != candidateID {
		return st, interview.ErrCandidateSwap
	}
	if !st.Active() {
		return st, interview.ErrNotActive
	}
	return st, nil
}
