package httpkit

import (
	"net/http"

	"turnstile/internal/platform/net/middleware"
)

// Protected mounts fn's routes behind Auth(p)
// a nil port leaves the group open
func Protected(r Router, p middleware.AuthPort, fn func(Router)) {
	r.Group(func(gr Router) {
		gr.Use(Auth(p))
		fn(gr)
	})
}

// MountUnder mounts a subrouter at prefix with per module middleware
func MountUnder(r Router, prefix string, mw []func(http.Handler) http.Handler, mount func(Router)) {
	r.Route(prefix, func(sub Router) {
		if len(mw) > 0 {
			sub.Use(mw...)
		}
		mount(sub)
	})
}
