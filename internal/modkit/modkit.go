// Package modkit provides module wiring and core deps
package modkit

import (
	phttp "turnstile/internal/platform/net/http"
)

// Module is the surface api composes: routes under a prefix plus a port set
type Module interface {
	// MountRoutes mounts HTTP routes under the provided router seam
	MountRoutes(r phttp.Router)
	// Ports returns the module's port set for cross wiring
	Ports() any
	Name() string
	Prefix() string
}
