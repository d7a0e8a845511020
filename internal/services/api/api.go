// Package api composes the turnstile modules into one process
package api

import (
	"net/http"

	"turnstile/internal/modkit"
	"turnstile/internal/modkit/httpkit"
	"turnstile/internal/modkit/module"
	"turnstile/internal/modkit/swaggerkit"
	"turnstile/internal/platform/bus"
	"turnstile/internal/platform/config"
	perr "turnstile/internal/platform/errors"
	phttp "turnstile/internal/platform/net/http"
	"turnstile/internal/platform/store"

	metamod "turnstile/internal/services/api/meta/module"
	chanmod "turnstile/internal/services/channels/module"
	imod "turnstile/internal/services/interview/module"
	turnsmod "turnstile/internal/services/turns/module"
)

// Role selects which bus handlers a process runs
type Role string

// Roles
const (
	// RoleAPI owns the web chat sockets and therefore reply delivery
	RoleAPI Role = "api"
	// RoleWorker runs the aggregator and the interview pipeline
	RoleWorker Role = "worker"
	// RoleAll runs everything in one process
	RoleAll Role = "all"
)

// ServerRole validates the -mode of turnstile-api against the bus transport
// api alone hands turns to a separate worker, so it needs a shared transport
func ServerRole(mode, transport string) (Role, error) {
	switch r := Role(mode); r {
	case RoleAll:
		return r, nil
	case RoleAPI:
		if transport != bus.TransportRedis {
			return "", perr.InvalidArgf("-mode=api needs BUS_TRANSPORT=redis so a worker can consume; use -mode=all for a single process")
		}
		return r, nil
	default:
		return "", perr.InvalidArgf("unknown -mode %q (expected: api | all)", mode)
	}
}

// App holds the wired modules of one process
type App struct {
	Turns     *turnsmod.Module
	Interview *imod.Module
	Channels  *chanmod.Module
	Meta      modkit.Module
}

// Build wires turns, interview and channels over deps
// with a bus, channels publish facts; without one they append in process
func Build(deps modkit.Deps, service string, st *store.Store) *App {
	tm := turnsmod.New(deps)
	tp := tm.TurnPorts()
	im := imod.New(deps, modkit.WithPorts(tp.ForPipeline()))
	cm := chanmod.New(deps, modkit.WithPorts(chanmod.Needs{
		Conversations: module.MustPortsOf[imod.Ports](im).Lifecycle,
		Buffer:        tp.Buffer,
		Activity:      tp.Activity,
	}), modkit.WithMiddlewares(httpkit.JSONOnly()))
	meta := metamod.New(deps, modkit.WithPorts(metamod.Needs{
		ServiceName: service,
		Probes:      st.Probes(),
	}))

	a := &App{Turns: tm, Interview: im, Channels: cm, Meta: meta}
	for _, m := range a.modules() {
		module.Register(m.Name(), m.Ports())
	}
	return a
}

func (a *App) modules() []module.Module {
	return []module.Module{a.Meta, a.Turns, a.Interview, a.Channels}
}

// Subscribe attaches the handlers role needs to r
func (a *App) Subscribe(r bus.Router, role Role) {
	if role == RoleWorker || role == RoleAll {
		a.Turns.Subscribe(r)
		a.Interview.Subscribe(r)
	}
	if role == RoleAPI || role == RoleAll {
		a.Channels.Subscribe(r)
	}
}

// Options are the API options
type Options struct {
	Config         config.Conf
	OperatorToken  string
	EnableSwagger  bool
	EnableProfiler bool
	AllowedOrigins []string
	Metrics        http.Handler
}

// Mount mounts every module under /api/v1
// conversation and turn routes require the operator token when one is set; channel routes are candidate facing
func Mount(r phttp.Router, a *App, opt Options) {
	var protected []string
	if opt.OperatorToken != "" {
		protected = []string{a.Turns.Prefix(), a.Interview.Prefix()}
	}
	swaggerkit.Mount(r, opt.EnableSwagger, protected...)
	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)
	if opt.Metrics != nil {
		r.Handle("/metrics", opt.Metrics)
	}

	httpkit.MountAPIV1(r, httpkit.CommonStack(opt.AllowedOrigins...), func(api httpkit.Router) {
		a.Meta.MountRoutes(api)
		a.Channels.MountRoutes(api)
		httpkit.Protected(api, httpkit.OperatorPort(opt.OperatorToken), func(admin httpkit.Router) {
			a.Turns.MountRoutes(admin)
			a.Interview.MountRoutes(admin)
		})
	})
}
