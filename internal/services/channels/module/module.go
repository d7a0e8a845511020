// Package module wires the candidate channels and exposes their ports
package module

import (
	"net/http"

	aiopenai "turnstile/internal/adapters/ai/openai"
	"turnstile/internal/adapters/telegram"
	"turnstile/internal/adapters/transcribe"
	"turnstile/internal/adapters/webchat"
	"turnstile/internal/modkit"
	"turnstile/internal/modkit/httpkit"
	"turnstile/internal/platform/bus"
	"turnstile/internal/platform/logger"
	chttp "turnstile/internal/services/channels/http"
	"turnstile/internal/services/channels/service"
)

// Module defines the channels module
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	ports  Ports
	svc    *service.Svc
	secret string
}

// New constructs the channels module from TELEGRAM_*, OPENAI_* and WEBCHAT_* settings
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("channels"),
		modkit.WithPrefix("/channels"),
	}, opts...)...)

	needs, ok := b.Ports.(Needs)
	if !ok || needs.Conversations == nil {
		panic("channels module requires Needs via modkit.WithPorts")
	}
	log := logger.Named("channels")

	var sink service.Sink
	switch {
	case deps.Bus != nil:
		sink = service.BusSink{Pub: deps.Bus}
	case needs.Buffer != nil && needs.Activity != nil:
		sink = service.DirectSink{Buffer: needs.Buffer, Armer: needs.Activity}
	default:
		panic("channels module requires a bus or turns buffer ports")
	}

	o := service.Options{
		Conversations: needs.Conversations,
		Sink:          sink,
		Hub:           webchat.NewHub(deps.Cfg.Prefix("WEBCHAT_").MayCSV("ALLOWED_ORIGINS", nil)),
	}
	tg := telegram.FromConfig(deps.Cfg)
	if tg.Enabled() {
		o.Telegram = telegram.NewClient(tg)
		log.Info().Bool("webhook", tg.WebhookSecret != "").Msg("channels: telegram enabled")
	}
	if oc := aiopenai.FromConfig(deps.Cfg); oc.Enabled() {
		o.Transcriber = transcribe.NewWhisper(oc, deps.Cfg.Prefix("TRANSCRIBE_").MayString("LANGUAGE", ""))
	}

	svc := service.New(deps, o)
	return &Module{
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		svc:    svc,
		secret: tg.WebhookSecret,
		ports:  Ports{Web: svc, Telegram: svc, Delivery: svc},
	}
}

// Name returns the module name
func (m *Module) Name() string { return m.name }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return m.prefix }

// Hub returns the socket hub so the server can close connections on shutdown
func (m *Module) Hub() *webchat.Hub { return m.svc.Hub() }

// Subscribe attaches reply delivery to the bus
// run it in the process that holds the web chat sockets
func (m *Module) Subscribe(r bus.Router) { m.svc.Register(r) }

// MountRoutes mounts the web chat and Telegram endpoints
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.mws, func(rr httpkit.Router) {
		chttp.Register(rr, m.svc, m.secret)
	})
}
