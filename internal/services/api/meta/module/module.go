// Package module mounts the version and health endpoints
package module

import (
	"context"
	"net/http"
	"time"

	"turnstile/internal/modkit"
	"turnstile/internal/modkit/httpkit"

	metahttp "turnstile/internal/services/api/meta/http"
)

// Module implements modkit.Module
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	deps   metahttp.Deps
}

// Needs is injected with modkit.WithPorts; both fields are optional
type Needs struct {
	ServiceName string
	Probes      map[string]func(context.Context) error
}

// New constructs the meta module
func New(_ modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/meta"),
	}, opts...)...)

	needs, _ := b.Ports.(Needs)
	if needs.ServiceName == "" {
		needs.ServiceName = "turnstile"
	}
	probes := make(map[string]metahttp.Probe, len(needs.Probes))
	for name, p := range needs.Probes {
		probes[name] = p
	}
	return &Module{
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		deps: metahttp.Deps{
			ServiceName: needs.ServiceName,
			StartedAt:   time.Now(),
			Probes:      probes,
		},
	}
}

// MountRoutes mounts /version, /health and /ready
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.mws, func(rr httpkit.Router) {
		metahttp.Register(rr, m.deps)
	})
}

// Name implements modkit.Module
func (m *Module) Name() string { return m.name }

// Prefix implements modkit.Module
func (m *Module) Prefix() string { return m.prefix }

// Ports implements modkit.Module; meta exposes none
func (m *Module) Ports() any { return nil }
