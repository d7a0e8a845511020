// Package module holds what every turnstile module exposes to the api wiring
package module

import (
	phttp "turnstile/internal/platform/net/http"
)

// Module is one mountable slice of turnstile: turns, interview, channels or meta
// Ports is registered under Name so sibling modules can find it
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
	// Prefix is the route prefix MountRoutes uses, e.g. /turns
	Prefix() string
}
