//go:build !swag

// Package swaggerkit serves the turnstile OpenAPI document and its UI
package swaggerkit

import (
	"encoding/json"
	"net/http"

	"turnstile/internal/platform/version"
)

var docReader = func() string { return "" }

// serveDocJSON serves a stub document until the swag build tag compiles the generated one in
// each protected prefix is listed so operators can see what the token guards
func serveDocJSON(protected []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if doc := docReader(); doc != "" {
			_, _ = w.Write([]byte(doc))
			return
		}
		paths := map[string]any{}
		for _, p := range protected {
			paths[p] = map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"openapi": "3.0.3",
			"info":    map[string]any{"title": "turnstile", "version": version.Info("turnstile-api").Version},
			"servers": []any{map[string]any{"url": "/api/v1"}},
			"paths":   paths,
		})
	}
}
