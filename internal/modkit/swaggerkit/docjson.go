//go:build swag

package swaggerkit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"turnstile/internal/platform/config"
	perr "turnstile/internal/platform/errors"
	phttp "turnstile/internal/platform/net/http"

	docs "turnstile/internal/services/api/docs"
)

// docReader is a seam so tests can inject invalid JSON
var docReader = func() string { return docs.SwaggerInfo.ReadDoc() }

// serveDocJSON documents a 401 on every path under one of protected
func serveDocJSON(protected []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec map[string]any
		if err := json.Unmarshal([]byte(docReader()), &spec); err != nil {
			phttp.WriteError(w, r, perr.Wrap(err, perr.ErrorCodeUnknown, "spec parse error"))
			return
		}

		ensureServers(spec, "/api/v1")
		if v := config.New().Prefix("API_").MayString("DOCS_TITLE_SUFFIX", ""); v != "" {
			if info, ok := spec["info"].(map[string]any); ok {
				if title, ok := info["title"].(string); ok {
					info["title"] = title + " " + v
				}
			}
		}

		ensureErrorSchema(spec)
		addDefault(spec, http.StatusInternalServerError, perr.ErrorCodePanic, "panic recovered", nil)
		addDefault(spec, http.StatusBadRequest, perr.ErrorCodeValidation, "activity must be one of [typing recording]", nil)
		addDefault(spec, http.StatusUnauthorized, perr.ErrorCodeUnauthorized, "invalid operator token", func(path string) bool {
			for _, p := range protected {
				if strings.HasPrefix(path, p) {
					return true
				}
			}
			return false
		})

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(spec)
	}
}

// ensureServers lifts swagger 2 and 3.1 documents to 3.0.3 and sets a base server
func ensureServers(spec map[string]any, url string) {
	delete(spec, "swagger")
	if v, _ := spec["openapi"].(string); !strings.HasPrefix(v, "3.0") {
		spec["openapi"] = "3.0.3"
	}
	if _, ok := spec["servers"]; !ok {
		spec["servers"] = []any{map[string]any{"url": url}}
	}
}

// ensureErrorSchema adds the error envelope model when the generator did not
func ensureErrorSchema(spec map[string]any) {
	comps, _ := spec["components"].(map[string]any)
	if comps == nil {
		comps = map[string]any{}
		spec["components"] = comps
	}
	schemas, _ := comps["schemas"].(map[string]any)
	if schemas == nil {
		schemas = map[string]any{}
		comps["schemas"] = schemas
	}
	if _, ok := schemas["ErrorResponse"]; ok {
		return
	}
	schemas["ErrorResponse"] = map[string]any{
		"type":        "object",
		"description": "Standard error response",
		"properties": map[string]any{
			"status_code": map[string]any{"type": "integer", "format": "int32"},
			"status":      map[string]any{"type": "string"},
			"code":        map[string]any{"type": "integer", "format": "int32"},
			"error":       map[string]any{"type": "string"},
			"request_id":  map[string]any{"type": "string"},
		},
		"required": []any{"status_code", "status"},
	}
}

// addDefault injects an error response into every operation that lacks one
// match limits it to some paths; nil means all
func addDefault(spec map[string]any, status int, code perr.ErrorCode, msg string, match func(string) bool) {
	paths, ok := spec["paths"].(map[string]any)
	if !ok {
		return
	}
	key, desc := strconv.Itoa(status), http.StatusText(status)
	resp := map[string]any{
		"description": desc,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/ErrorResponse"},
				"example": map[string]any{
					"status_code": status,
					"status":      desc,
					"code":        int(code),
					"error":       msg,
				},
			},
		},
	}
	for path, p := range paths {
		if match != nil && !match(path) {
			continue
		}
		node, ok := p.(map[string]any)
		if !ok {
			continue
		}
		for _, opAny := range node {
			op, ok := opAny.(map[string]any)
			if !ok {
				continue
			}
			responses, _ := op["responses"].(map[string]any)
			if responses == nil {
				responses = map[string]any{}
				op["responses"] = responses
			}
			if _, exists := responses[key]; !exists {
				responses[key] = resp
			}
		}
	}
}
