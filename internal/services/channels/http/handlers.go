// Package http provides http transport for the candidate channels
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	stdhttp "net/http"

	"turnstile/internal/adapters/telegram"
	"turnstile/internal/adapters/webchat"
	"turnstile/internal/modkit/httpkit"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/services/channels/domain"
	interview "turnstile/internal/services/interview/domain"
)

// SecretHeader carries the webhook secret Telegram echoes back on every update
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Service is what the transport needs from the channels service
type Service interface {
	domain.WebPort
	domain.TelegramPort
	Resolve(ctx context.Context, conversationID, candidateID string) (interview.State, error)
	Hub() *webchat.Hub
}

// Register mounts the web chat and Telegram endpoints
// the webhook is open only when a secret is configured
func Register(r httpkit.Router, s Service, webhookSecret string) {
	h := &handlers{svc: s, secret: webhookSecret}
	httpkit.PostJSON[domain.WebMessageInput](r, "/webchat/messages", h.message)
	httpkit.PostJSON[domain.WebActivityInput](r, "/webchat/activity", h.activity)
	r.Handle("/webchat/ws", stdhttp.HandlerFunc(h.socket))
	if webhookSecret != "" {
		httpkit.Post(r, "/telegram/webhook", h.webhook)
	}
}

type handlers struct {
	svc    Service
	secret string
}

// @Summary Buffer a web chat message
// @Tags channels
// @Accept json
// @Produce json
// @Param payload body domain.WebMessageInput true "Message"
// @Success 202 {object} domain.Accepted "accepted"
// @Router /channels/webchat/messages [post]
func (h *handlers) message(r *stdhttp.Request, in domain.WebMessageInput) (any, error) {
	acc, err := h.svc.WebMessage(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return httpkit.Response{Status: stdhttp.StatusAccepted, Body: acc}, nil
}

// @Summary Typing or recording indicator
// @Tags channels
// @Accept json
// @Param payload body domain.WebActivityInput true "Activity"
// @Success 204 "no content"
// @Router /channels/webchat/activity [post]
func (h *handlers) activity(r *stdhttp.Request, in domain.WebActivityInput) (any, error) {
	if err := h.svc.WebActivity(r.Context(), in); err != nil {
		return nil, err
	}
	return httpkit.NoContent(), nil
}

// @Summary Telegram webhook
// @Tags channels
// @Accept json
// @Success 204 "no content"
// @Router /channels/telegram/webhook [post]
func (h *handlers) webhook(r *stdhttp.Request) (any, error) {
	got := r.Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		return nil, perr.Newf(perr.ErrorCodeUnauthorized, "bad webhook secret")
	}
	var u telegram.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&u); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "decode update")
	}
	if err := h.svc.HandleUpdate(r.Context(), u); err != nil {
		return nil, err
	}
	return httpkit.NoContent(), nil
}

// socket upgrades a candidate connection and feeds its frames into the aggregator
func (h *handlers) socket(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conv := r.URL.Query().Get("conversation_id")
	cand := r.URL.Query().Get("candidate_id")
	if conv == "" || cand == "" {
		httpkit.WriteError(w, r, perr.Newf(perr.ErrorCodeValidation, "conversation_id and candidate_id are required"))
		return
	}
	if _, err := h.svc.Resolve(r.Context(), conv, cand); err != nil {
		httpkit.WriteError(w, r, err)
		return
	}
	h.svc.Hub().Serve(w, r, conv, func(ctx context.Context, f webchat.Frame) error {
		switch f.Type {
		case webchat.FrameMessage:
			_, err := h.svc.WebMessage(ctx, domain.WebMessageInput{
				ConversationID: conv,
				CandidateID:    cand,
				MessageID:      f.MessageID,
				Text:           f.Text,
			})
			return err
		case webchat.FrameActivity:
			return h.svc.WebActivity(ctx, domain.WebActivityInput{
				ConversationID: conv,
				CandidateID:    cand,
				Activity:       f.Activity,
			})
		}
		return perr.InvalidArgf("unknown frame type %q", f.Type)
	})
}
