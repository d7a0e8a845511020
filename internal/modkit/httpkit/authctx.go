package httpkit

import (
	"net/http"

	perrs "turnstile/internal/platform/errors"
	pnet "turnstile/internal/platform/net"
)

// User returns the caller Auth attached to the request
func User(r *http.Request) (string, error) {
	uid := pnet.UserID(r.Context())
	if uid == "" {
		return "", perrs.Unauthorizedf("missing bearer token")
	}
	return uid, nil
}

// Scope returns the scope Auth attached to the request
func Scope(r *http.Request) (string, error) {
	s := pnet.Scope(r.Context())
	if s == "" {
		return "", perrs.Unauthorizedf("missing scope")
	}
	return s, nil
}
