package middleware

import (
	"net/http"

	pnet "turnstile/internal/platform/net"
)

// AuthPort resolves the caller of a request
type AuthPort interface {
	// Parse returns the caller id and its scope or an error
	Parse(r *http.Request) (userID string, scope string, err error)
}

// Auth puts the caller on the request context and rejects requests p cannot parse
// a nil port leaves the routes open
func Auth(p AuthPort, write func(w http.ResponseWriter, status int, body any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if p == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, scope, err := p.Parse(r)
			if err != nil {
				status, body := pnet.Error(err, pnet.RequestID(r.Context()))
				write(w, status, body)
				return
			}
			ctx := pnet.WithUser(r.Context(), uid)
			ctx = pnet.WithRequest(ctx, pnet.RequestID(ctx), scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
