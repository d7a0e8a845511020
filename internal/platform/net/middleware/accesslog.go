package middleware

import (
	"net/http"
	"time"

	"turnstile/internal/platform/logger"
)

// AccessLogOptions configures AccessLogZerolog
type AccessLogOptions struct {
	// Slow logs requests at or above it as warn; 0 disables
	Slow time.Duration
	// Skip suppresses the line for matching paths such as the socket endpoint
	Skip func(path string) bool
}

type captureWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(b)
	cw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades
func (cw *captureWriter) Unwrap() http.ResponseWriter { return cw.ResponseWriter }

// AccessLogZerolog logs one line per request on the request scoped logger
func AccessLogZerolog(opt AccessLogOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opt.Skip != nil && opt.Skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(cw, r)
			elapsed := time.Since(start)

			log := logger.C(r.Context())
			evt := log.Info()
			switch {
			case cw.status >= http.StatusInternalServerError:
				evt = log.Error()
			case opt.Slow > 0 && elapsed >= opt.Slow:
				evt = log.Warn()
			}
			evt.Int("status", cw.status).
				Dur("elapsed", elapsed).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("bytes", cw.bytes).
				Msg("request done")
		})
	}
}
