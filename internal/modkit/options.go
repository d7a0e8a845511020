package modkit

import (
	"net/http"

	pstrings "turnstile/internal/platform/strings"
)

// Option mutates the build configuration of a module
type Option func(*Built)

// Built is what a module constructor reads after applying its options
type Built struct {
	Name   string
	Prefix string
	Mw     []func(http.Handler) http.Handler
	Ports  any
}

// WithName sets the name a module registers its ports under
func WithName(name string) Option {
	return func(b *Built) { b.Name = name }
}

// WithPrefix mounts a module under a path prefix
func WithPrefix(prefix string) Option {
	return func(b *Built) { b.Prefix = prefix }
}

// WithMiddlewares attaches per module middleware in order
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(b *Built) { b.Mw = append(b.Mw, mw...) }
}

// WithPorts injects the ports a module needs from its peers
// the concrete type is owned by the importing module
func WithPorts[T any](p T) Option {
	return func(b *Built) { b.Ports = p }
}

// Build applies opts in order; later options win
// a module without a name panics, the prefix is normalised to a single leading slash
func Build(opts ...Option) Built {
	var b Built
	for _, o := range opts {
		o(&b)
	}
	b.Name = pstrings.MustString(b.Name, "module name")
	b.Prefix = pstrings.MustPrefix(b.Prefix)
	b.Mw = append([]func(http.Handler) http.Handler(nil), b.Mw...)
	return b
}
