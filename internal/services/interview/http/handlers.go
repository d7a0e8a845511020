// Package http provides http transport for interview conversations
package http

import (
	stdhttp "net/http"

	"turnstile/internal/modkit/httpkit"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	"turnstile/internal/services/interview/domain"
)

// Register mounts the conversation endpoints
func Register(r httpkit.Router, s domain.LifecyclePort) {
	h := &handlers{svc: s}
	httpkit.PostJSON[domain.StartInput](r, "/", h.start)
	httpkit.Get(r, "/{id}", h.get)
	httpkit.PostJSON[domain.EndInput](r, "/{id}/end", h.end)
}

type handlers struct {
	svc domain.LifecyclePort
}

// @Summary Start an interview conversation
// @Tags conversations
// @Accept json
// @Produce json
// @Param payload body domain.StartInput true "Conversation"
// @Success 201 {object} domain.State "created"
// @Router /conversations [post]
func (h *handlers) start(r *stdhttp.Request, in domain.StartInput) (any, error) {
	st, err := h.svc.Start(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return httpkit.Created(st), nil
}

// @Summary Conversation step state and history
// @Tags conversations
// @Produce json
// @Param id path string true "conversation"
// @Success 200 {object} domain.State "ok"
// @Router /conversations/{id} [get]
func (h *handlers) get(r *stdhttp.Request) (any, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	return h.svc.Get(r.Context(), id)
}

// @Summary End a conversation and close its buffers
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "conversation"
// @Param payload body domain.EndInput true "Reason"
// @Success 200 {object} domain.State "ok"
// @Router /conversations/{id}/end [post]
func (h *handlers) end(r *stdhttp.Request, in domain.EndInput) (any, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	if uid, err := httpkit.User(r); err == nil {
		scope, _ := httpkit.Scope(r)
		logger.C(r.Context()).Info().Str("conversation_id", id).Str("by", uid).Str("scope", scope).Msg("conversation end requested")
	}
	return h.svc.End(r.Context(), id, in.Reason)
}

func pathID(r *stdhttp.Request) (string, error) {
	id := httpkit.Param(r, "id")
	if id == "" {
		return "", perr.WithField(perr.InvalidArgf("conversation id is required"), "id")
	}
	return id, nil
}
