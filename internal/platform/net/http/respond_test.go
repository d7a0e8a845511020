package http_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "turnstile/internal/platform/errors"
	pnet "turnstile/internal/platform/net"
	phttp "turnstile/internal/platform/net/http"
)

func reqWithReqID(method, path, rid string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	return req.WithContext(pnet.WithRequest(req.Context(), rid, ""))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) phttp.Envelope {
	t.Helper()
	var env phttp.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestHandle(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		resp   phttp.Response
		status int
		code   perr.ErrorCode
		body   bool
	}{
		{"ok", phttp.OK(map[string]string{"turn_id": "t-1"}), http.StatusOK, 0, true},
		{"zero status is ok", phttp.Response{Body: "x"}, http.StatusOK, 0, true},
		{"created", phttp.Created("c-1"), http.StatusCreated, 0, true},
		{"no content", phttp.NoContent(), http.StatusNoContent, 0, false},
		{"project error", phttp.Error(perr.New(perr.ErrorCodeForbidden, "nope")), http.StatusForbidden, perr.ErrorCodeForbidden, true},
		{"plain error", phttp.Error(errors.New("boom")), http.StatusInternalServerError, perr.ErrorCodeUnknown, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			phttp.Handle(func(*http.Request) phttp.Response { return tc.resp })(rec, reqWithReqID("GET", "/", "rid-1"))
			if rec.Code != tc.status {
				t.Fatalf("status = %d want %d", rec.Code, tc.status)
			}
			if !tc.body {
				if rec.Body.Len() != 0 {
					t.Fatalf("unexpected body %q", rec.Body.String())
				}
				return
			}
			env := decode(t, rec)
			if env.StatusCode != tc.status || env.RequestID != "rid-1" || env.Code != tc.code {
				t.Fatalf("envelope = %+v", env)
			}
		})
	}
}

func TestHandle_Headers(t *testing.T) {
	t.Parallel()
	h := phttp.Handle(func(*http.Request) phttp.Response {
		resp := phttp.OK("hello")
		resp.Header = http.Header{"Retry-After": []string{"2"}}
		return resp
	})
	rec := httptest.NewRecorder()
	h(rec, reqWithReqID("GET", "/", "rid-2"))
	if rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("headers = %v", rec.Header())
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	phttp.WriteError(rec, reqWithReqID("GET", "/ws", "rid-3"), perr.NotFoundf("conversation c1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	env := decode(t, rec)
	if env.Code != perr.ErrorCodeNotFound || env.RequestID != "rid-3" || env.Error == "" {
		t.Fatalf("envelope = %+v", env)
	}
}
