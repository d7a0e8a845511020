package httpkit

import (
	"compress/flate"
	"net/http"
	"strings"
	"time"

	phttp "turnstile/internal/platform/net/http"
	"turnstile/internal/platform/net/middleware"
)

// CommonStack is the middleware every /api/v1 route runs behind
// no origins allows any origin
func CommonStack(origins ...string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.RealIP(),
		middleware.RecoverJSON,
		middleware.NoCache(),
		middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 500 * time.Millisecond, Skip: isSocket}),
		middleware.CORS(middleware.CORSOptions{AllowedOrigins: origins}),
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/api/v1/ping"),
		middleware.StripSlashes(),
		// the web chat socket detaches from the request context so this only bounds plain requests
		middleware.Timeout(30 * time.Second),
	}
}

// Auth rejects requests p cannot parse with the JSON error envelope
func Auth(p middleware.AuthPort) func(http.Handler) http.Handler {
	return middleware.Auth(p, phttp.JSON)
}

func isSocket(path string) bool { return strings.HasSuffix(path, "/ws") }

// JSONOnly rejects bodied requests that are not application/json
func JSONOnly() func(http.Handler) http.Handler {
	return middleware.AllowContentType("application/json")
}
