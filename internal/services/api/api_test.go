package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"turnstile/internal/modkit"
	"turnstile/internal/platform/bus"
	"turnstile/internal/platform/config"
	"turnstile/internal/platform/metrics"
	phttp "turnstile/internal/platform/net/http"
	"turnstile/internal/platform/store"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) (*App, http.Handler) {
	t.Helper()
	t.Setenv("INTERVIEW_COLLABORATOR", "scripted")
	st, err := store.Open(context.Background(), store.Config{KV: store.KVConfig{Enabled: true, InMemory: true}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	m := metrics.New(prometheus.NewRegistry())
	deps := modkit.Deps{Cfg: config.New(), KV: st.KV, Metrics: m}
	app := Build(deps, "turnstile-test", st)

	mux := chi.NewRouter()
	Mount(phttp.AdaptChi(mux), app, Options{OperatorToken: "op-token", Metrics: m.Handler()})
	return app, mux
}

func call(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMount_OperatorRoutesNeedToken(t *testing.T) {
	_, h := newApp(t)
	start := `{"candidate_id":"cand-1","conversation_id":"conv-1","channel":"webchat"}`

	rr := call(h, http.MethodPost, "/api/v1/conversations", start, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code, rr.Body.String())

	rr = call(h, http.MethodPost, "/api/v1/conversations", start, "op-token")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// candidate facing routes stay open
	rr = call(h, http.MethodPost, "/api/v1/channels/webchat/messages",
		`{"conversation_id":"conv-1","candidate_id":"cand-1","text":"hello"}`, "")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = call(h, http.MethodGet, "/api/v1/turns/status?candidate_id=cand-1&conversation_id=conv-1&interview_step=0", "", "op-token")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"pending":1`)
}

func TestMount_MetaAndMetrics(t *testing.T) {
	_, h := newApp(t)

	rr := call(h, http.MethodGet, "/api/v1/meta/ready", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"name":"kv"`)

	rr = call(h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestBuild_ModulesHaveDistinctPrefixes(t *testing.T) {
	app, _ := newApp(t)
	names := map[string]bool{}
	prefixes := map[string]bool{}
	for _, m := range app.modules() {
		require.False(t, names[m.Name()], "duplicate module %s", m.Name())
		require.False(t, prefixes[m.Prefix()], "duplicate prefix %s", m.Prefix())
		require.True(t, strings.HasPrefix(m.Prefix(), "/"), m.Prefix())
		names[m.Name()] = true
		prefixes[m.Prefix()] = true
	}
	require.Len(t, prefixes, 4)
}

func TestServerRole(t *testing.T) {
	cases := []struct {
		mode, transport string
		want            Role
		ok              bool
	}{
		{"all", bus.TransportGoChannel, RoleAll, true},
		{"api", bus.TransportRedis, RoleAPI, true},
		{"api", bus.TransportGoChannel, "", false},
		{"worker", bus.TransportRedis, "", false},
		{"", bus.TransportRedis, "", false},
	}
	for _, tc := range cases {
		got, err := ServerRole(tc.mode, tc.transport)
		if !tc.ok {
			require.Error(t, err, tc.mode)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}
