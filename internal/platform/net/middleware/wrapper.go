// Package middleware adapts chi middleware and adds the in house ones
package middleware

import (
	"net/http"
	"time"

	pstrings "turnstile/internal/platform/strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	chicors "github.com/go-chi/cors"
)

// RequestID attaches or propagates X-Request-ID and stores it on context
func RequestID() func(http.Handler) http.Handler { return chimw.RequestID }

// RealIP sets RemoteAddr from X-Forwarded-For or X-Real-IP
func RealIP() func(http.Handler) http.Handler { return chimw.RealIP }

// Timeout cancels the request context after d
func Timeout(d time.Duration) func(http.Handler) http.Handler { return chimw.Timeout(d) }

// NoCache disables client and proxy caching
func NoCache() func(http.Handler) http.Handler { return chimw.NoCache }

// Compress compresses responses at level for clients that accept it
func Compress(level int) func(http.Handler) http.Handler {
	c := chimw.NewCompressor(level)
	return c.Handler
}

// StripSlashes strips a trailing slash from the request path
func StripSlashes() func(http.Handler) http.Handler { return chimw.StripSlashes }

// AllowContentType rejects bodied requests with any other content type
func AllowContentType(ct ...string) func(http.Handler) http.Handler {
	return chimw.AllowContentType(ct...)
}

// Heartbeat answers GET path with 200 before routing
func Heartbeat(path string) func(http.Handler) http.Handler { return chimw.Heartbeat(path) }

// CORSOptions is a narrow surface over go-chi/cors
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// CORS wraps go-chi/cors; empty lists fall back to what the web chat client sends
func CORS(o CORSOptions) func(http.Handler) http.Handler {
	return chicors.Handler(chicors.Options{
		AllowedOrigins:   o.AllowedOrigins,
		AllowedMethods:   pstrings.IfEmpty(o.AllowedMethods, []string{"GET", "POST", "OPTIONS"}),
		AllowedHeaders:   pstrings.IfEmpty(o.AllowedHeaders, []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
		AllowCredentials: o.AllowCredentials,
		MaxAge:           o.MaxAge,
	})
}
