// Package http provides http transport for the turn aggregator status surface
package http

import (
	stdhttp "net/http"
	"strconv"

	"turnstile/internal/modkit/httpkit"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/services/turns/domain"
)

// Register mounts the turns endpoints
func Register(r httpkit.Router, s domain.StatusPort, outbox domain.OutboxPort) {
	h := &handlers{port: s, outbox: outbox}
	httpkit.Get(r, "/status", h.statusQuery)
	httpkit.PostJSON[domain.StatusQuery](r, "/status", h.status)
	httpkit.Get(r, "/outbox/{conversation_id}", h.queue)
}

type handlers struct {
	port   domain.StatusPort
	outbox domain.OutboxPort
}

// @Summary Whether a candidate is still composing a turn
// @Tags turns
// @Produce json
// @Param candidate_id query string true "candidate"
// @Param conversation_id query string true "conversation"
// @Param interview_step query int true "step"
// @Success 200 {object} domain.StatusView "ok"
// @Router /turns/status [get]
func (h *handlers) statusQuery(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	in := domain.StatusQuery{
		CandidateID:    q.Get("candidate_id"),
		ConversationID: q.Get("conversation_id"),
	}
	if s := q.Get("interview_step"); s != "" {
		step, err := strconv.Atoi(s)
		if err != nil {
			return nil, perr.WithField(perr.InvalidArgf("interview_step must be an integer"), "interview_step")
		}
		in.InterviewStep = step
	}
	if err := httpkit.Validate(in); err != nil {
		return nil, err
	}
	return h.status(r, in)
}

// @Summary Whether a candidate is still composing a turn
// @Tags turns
// @Accept json
// @Produce json
// @Param payload body domain.StatusQuery true "Key"
// @Success 200 {object} domain.StatusView "ok"
// @Router /turns/status [post]
func (h *handlers) status(r *stdhttp.Request, in domain.StatusQuery) (any, error) {
	ctx := r.Context()
	key := in.Key()
	pending, err := h.port.Pending(ctx, key)
	if err != nil {
		return nil, err
	}
	out := domain.StatusView{HasBuffer: len(pending) > 0, Pending: len(pending), State: domain.StateIdle}
	ks, found, err := h.port.KeyState(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		out.State = ks.State
		out.DueAt = ks.DueAt
	}
	return out, nil
}

// @Summary Pending assembled turns of a conversation in pipeline order
// @Tags turns
// @Produce json
// @Param conversation_id path string true "conversation"
// @Success 200 {array} domain.AssembledTurn "ok"
// @Router /turns/outbox/{conversation_id} [get]
func (h *handlers) queue(r *stdhttp.Request) (any, error) {
	id := httpkit.Param(r, "conversation_id")
	if id == "" {
		return nil, perr.WithField(perr.InvalidArgf("conversation id is required"), "conversation_id")
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	return h.outbox.ListTurns(r.Context(), id, limit)
}
