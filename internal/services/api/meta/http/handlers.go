// Package http serves the liveness, readiness and build endpoints
package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"turnstile/internal/modkit/httpkit"
	"turnstile/internal/platform/version"

	"golang.org/x/sync/errgroup"
)

// Probe reports whether one backend answers
type Probe func(context.Context) error

// ProbeTimeout bounds a whole readiness check
const ProbeTimeout = 2 * time.Second

// Deps are the handler dependencies
type Deps struct {
	ServiceName string
	StartedAt   time.Time
	// Probes are keyed by backend name; none means ready
	Probes map[string]Probe
}

type handlers struct {
	deps Deps
	now  func() time.Time
}

// Register mounts the meta routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{deps: d, now: time.Now}
	httpkit.Get(r, "/health", h.health)
	httpkit.Get(r, "/ready", h.ready)
	httpkit.Get(r, "/version", h.version)
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	OK      bool   `json:"ok"      example:"true"`
	Service string `json:"service" example:"turnstile-api"`
	Started string `json:"started" example:"2026-03-01T09:00:00Z"`
	Uptime  int64  `json:"uptime"  example:"300"`
}

// ReadyCheck is the outcome of one probe
type ReadyCheck struct {
	Name   string `json:"name"            example:"redis"`
	Status string `json:"status"          example:"ok" enums:"ok,fail"`
	Error  string `json:"error,omitempty" example:"dial tcp 127.0.0.1:6379: connect: connection refused"`
}

// ReadyResponse summarises readiness; Status is fail when any check fails
type ReadyResponse struct {
	Status string       `json:"status" example:"ok" enums:"ok,fail"`
	Checks []ReadyCheck `json:"checks"`
}

// @Summary Liveness
// @Tags Meta
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /meta/health [get]
func (h *handlers) health(*http.Request) (any, error) {
	return HealthResponse{
		OK:      true,
		Service: h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(h.now().Sub(h.deps.StartedAt) / time.Second),
	}, nil
}

// @Summary Readiness with one check per store backend
// @Tags Meta
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /meta/ready [get]
func (h *handlers) ready(r *http.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), ProbeTimeout)
	defer cancel()

	names := make([]string, 0, len(h.deps.Probes))
	for name := range h.deps.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]ReadyCheck, len(names))
	var g errgroup.Group
	for i, name := range names {
		i := i
		name := name
		g.Go(func() error {
			checks[i] = ReadyCheck{Name: name, Status: "ok"}
			if err := h.deps.Probes[name](ctx); err != nil {
				checks[i].Status, checks[i].Error = "fail", err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := ReadyResponse{Status: "ok", Checks: checks}
	for _, c := range checks {
		if c.Status != "ok" {
			out.Status = "fail"
			return httpkit.Response{Status: http.StatusServiceUnavailable, Body: out}, nil
		}
	}
	return out, nil
}

// @Summary Build and version info
// @Tags Meta
// @Produce json
// @Success 200 {object} version.BuildInfo
// @Router /meta/version [get]
func (h *handlers) version(*http.Request) (any, error) {
	return version.Info(h.deps.ServiceName), nil
}
