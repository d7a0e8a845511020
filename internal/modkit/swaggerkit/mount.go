// Package swaggerkit provides helpers to mount Swagger UI and JSON spec
package swaggerkit

import (
	"net/http"

	phttp "turnstile/internal/platform/net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Mount serves the Swagger UI and JSON spec when enabled
// protected lists the route prefixes that sit behind the operator token
func Mount(r phttp.Router, enabled bool, protected ...string) {
	if !enabled {
		return
	}
	r.Get("/api/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/docs/", http.StatusPermanentRedirect)
	})
	r.Get("/api/docs/doc.json", serveDocJSON(protected))
	r.Handle("/api/docs/*", httpSwagger.Handler(
		httpSwagger.InstanceName("api"),
		httpSwagger.URL("/api/docs/doc.json"),
	))
}
