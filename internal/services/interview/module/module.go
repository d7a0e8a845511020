// Package module wires the interview pipeline and exposes its ports
package module

import (
	"net/http"
	"strings"

	aiopenai "turnstile/internal/adapters/ai/openai"
	"turnstile/internal/adapters/ai/scripted"
	"turnstile/internal/modkit"
	"turnstile/internal/modkit/httpkit"
	"turnstile/internal/platform/bus"
	"turnstile/internal/platform/logger"
	"turnstile/internal/services/interview/domain"
	ihttp "turnstile/internal/services/interview/http"
	"turnstile/internal/services/interview/service"
)

// Module defines the interview module
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	ports  Ports
	svc    *service.Svc
}

// New constructs the interview module
// the turns outbox and lifecycle must be injected with modkit.WithPorts[service.Turns]
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("interview"),
		modkit.WithPrefix("/conversations"),
	}, opts...)...)

	turns, ok := b.Ports.(service.Turns)
	if !ok {
		panic("interview module requires turns ports via modkit.WithPorts")
	}
	cfg := service.FromConfig(deps.Cfg)
	script, err := service.ScriptFromConfig(cfg)
	if err != nil {
		panic(err)
	}

	svc := service.New(deps, turns, Collaborator(deps), script, cfg)
	m := &Module{
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		svc:    svc,
	}
	m.ports = Ports{Lifecycle: svc, Pipeline: svc, Worker: svc}
	return m
}

// Collaborator picks the AI adapter from INTERVIEW_COLLABORATOR (auto, openai, scripted)
// auto uses OpenAI when OPENAI_API_KEY is set
func Collaborator(deps modkit.Deps) domain.Collaborator {
	oc := aiopenai.FromConfig(deps.Cfg)
	mode := strings.ToLower(deps.Cfg.Prefix("INTERVIEW_").MayEnum("COLLABORATOR", "auto", "auto", "openai", "scripted"))
	log := logger.Named("interview")
	switch {
	case mode == "openai" && !oc.Enabled():
		panic("INTERVIEW_COLLABORATOR=openai requires OPENAI_API_KEY")
	case mode == "openai", mode == "auto" && oc.Enabled():
		log.Info().Str("model", oc.Model).Msg("collaborator: openai")
		return aiopenai.NewCollaborator(oc)
	default:
		log.Info().Msg("collaborator: scripted")
		return scripted.New()
	}
}

// Name returns the module name
func (m *Module) Name() string { return m.name }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return m.prefix }

// Subscribe attaches the pipeline's bus handlers
func (m *Module) Subscribe(r bus.Router) { m.svc.Register(r) }

// MountRoutes mounts the conversation endpoints
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.mws, func(rr httpkit.Router) {
		ihttp.Register(rr, m.svc)
	})
}
