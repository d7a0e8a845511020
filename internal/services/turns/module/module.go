// Package module wires the turn aggregator and exposes its ports
package module

import (
	"net/http"

	"turnstile/internal/modkit"
	"turnstile/internal/modkit/httpkit"
	"turnstile/internal/platform/bus"

	thttp "turnstile/internal/services/turns/http"
	"turnstile/internal/services/turns/service"
)

// Module defines the turns module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	ports  Ports
	svc    *service.Svc
}

// New constructs the turns module; options follow modkit conventions
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("turns"),
		modkit.WithPrefix("/turns"),
	}, opts...)...)

	svc := service.New(deps, service.FromConfig(deps.Cfg))
	m := &Module{
		deps:   deps,
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		svc:    svc,
	}
	m.ports = Ports{
		Buffer:    svc,
		Activity:  svc,
		Flush:     svc,
		Lifecycle: svc,
		Status:    svc,
		Outbox:    svc,
		Sweeper:   svc,
		Worker:    svc,
		Events:    svc,
	}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return m.name }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// TurnPorts returns the typed port set for in-process wiring
func (m *Module) TurnPorts() Ports { return m.ports }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return m.prefix }

// Subscribe attaches the aggregator's bus handlers
func (m *Module) Subscribe(r bus.Router) { m.svc.Register(r) }

// MountRoutes mounts the status endpoints
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.mws, func(rr httpkit.Router) {
		thttp.Register(rr, m.svc, m.svc)
	})
}
