// Package httpkit provides tiny HTTP helpers and adapters
package httpkit

import (
	"crypto/subtle"
	"net/http"
	"strings"

	perrs "turnstile/internal/platform/errors"
	"turnstile/internal/platform/net/middleware"
)

// TokenFunc maps a bearer token to a user id and an optional scope
type TokenFunc func(token string) (userID string, scope string, err error)

// Port is a middleware.AuthPort reading "Authorization: Bearer <token>"
type Port struct {
	parse TokenFunc
}

// NewPortFunc builds a Port around fn
func NewPortFunc(fn TokenFunc) *Port { return &Port{parse: fn} }

// OperatorPort accepts one static bearer token and grants the admin scope.
// An empty token yields nil, which leaves Protected routes open.
func OperatorPort(token string) middleware.AuthPort {
	if token == "" {
		return nil
	}
	want := []byte(token)
	return NewPortFunc(func(raw string) (string, string, error) {
		if subtle.ConstantTimeCompare([]byte(raw), want) != 1 {
			return "", "", perrs.Unauthorizedf("invalid operator token")
		}
		return "operator", "admin", nil
	})
}

// Parse implements middleware.AuthPort. Every failure is ErrorCodeUnauthorized;
// a parser error that already carries that code is returned as is.
func (p *Port) Parse(r *http.Request) (string, string, error) {
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
		return "", "", perrs.Unauthorizedf("missing bearer token")
	}
	if p.parse == nil {
		return "", "", perrs.Unauthorizedf("invalid bearer token")
	}

	uid, scope, err := p.parse(fields[1])
	switch {
	case err == nil:
		return uid, scope, nil
	case perrs.IsCode(err, perrs.ErrorCodeUnauthorized):
		return "", "", err
	default:
		return "", "", perrs.Wrap(err, perrs.ErrorCodeUnauthorized, "invalid bearer token")
	}
}
