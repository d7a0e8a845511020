package module

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"turnstile/internal/modkit"
	"turnstile/internal/platform/config"
	"turnstile/internal/platform/metrics"
	phttp "turnstile/internal/platform/net/http"
	ptime "turnstile/internal/platform/time"
	"turnstile/internal/services/turns/domain"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	mux   http.Handler
	mod   *Module
	clock *ptime.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := ptime.NewFake(t0)
	m := New(modkit.Deps{Cfg: config.New(), KV: db, Clock: clock, Metrics: metrics.New(prometheus.NewRegistry())})
	mux := chi.NewRouter()
	m.MountRoutes(phttp.AdaptChi(mux))
	return &fixture{mux: mux, mod: m, clock: clock}
}

func (f *fixture) append(t *testing.T, conv, id string) {
	t.Helper()
	_, err := f.mod.TurnPorts().Buffer.Append(context.Background(), domain.BufferedMessage{
		MessageID: id,
		Key:       domain.BufferKey{CandidateID: "cand-1", ConversationID: conv},
		Kind:      domain.KindText,
		Text:      id,
		Channel:   domain.ChannelWebChat,
	})
	require.NoError(t, err)
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Error      string          `json:"error"`
	Data       json.RawMessage `json:"data"`
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

func TestStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.append(t, "conv-1", "m1")

	cases := []struct {
		name, method, path, body string
		code                     int
		hasBuffer                bool
		state                    domain.State
	}{
		{"get armed", http.MethodGet, "/turns/status?candidate_id=cand-1&conversation_id=conv-1&interview_step=0", "", http.StatusOK, true, domain.StateArmed},
		{"post armed", http.MethodPost, "/turns/status", `{"candidate_id":"cand-1","conversation_id":"conv-1","interview_step":0}`, http.StatusOK, true, domain.StateArmed},
		{"unknown key is idle", http.MethodGet, "/turns/status?candidate_id=cand-1&conversation_id=conv-9", "", http.StatusOK, false, domain.StateIdle},
		{"blank conversation", http.MethodGet, "/turns/status?candidate_id=cand-1&conversation_id=%20%20", "", http.StatusBadRequest, false, ""},
		{"missing candidate", http.MethodPost, "/turns/status", `{"conversation_id":"conv-1"}`, http.StatusBadRequest, false, ""},
		{"bad step", http.MethodGet, "/turns/status?candidate_id=cand-1&conversation_id=conv-1&interview_step=x", "", http.StatusUnprocessableEntity, false, ""},
		{"negative step", http.MethodPost, "/turns/status", `{"candidate_id":"cand-1","conversation_id":"conv-1","interview_step":-1}`, http.StatusBadRequest, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := f.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, tc.code, code, env.Error)
			if tc.code != http.StatusOK {
				require.NotEmpty(t, env.Error)
				return
			}
			var v domain.StatusView
			require.NoError(t, json.Unmarshal(env.Data, &v))
			require.Equal(t, tc.hasBuffer, v.HasBuffer)
			require.Equal(t, tc.state, v.State)
			if tc.hasBuffer {
				require.Equal(t, 1, v.Pending)
				require.True(t, v.DueAt.Equal(t0.Add(5*time.Second)), "due_at = %v", v.DueAt)
			}
		})
	}
}

func TestOutbox(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.append(t, "conv-1", "m1")
	f.append(t, "conv-1", "m2")
	f.clock.Advance(6 * time.Second)
	n, err := f.mod.TurnPorts().Sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	code, env := f.do(t, http.MethodGet, "/turns/outbox/conv-1?limit=5", "")
	require.Equal(t, http.StatusOK, code, env.Error)
	var queued []domain.AssembledTurn
	require.NoError(t, json.Unmarshal(env.Data, &queued))
	require.Len(t, queued, 1)
	require.Equal(t, "m1\nm2", queued[0].Text)
	require.Equal(t, []string{"m1", "m2"}, queued[0].MessageIDs)

	code, env = f.do(t, http.MethodGet, "/turns/status?candidate_id=cand-1&conversation_id=conv-1", "")
	require.Equal(t, http.StatusOK, code)
	var v domain.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.False(t, v.HasBuffer)
	require.Equal(t, domain.StateIdle, v.State)

	code, env = f.do(t, http.MethodGet, "/turns/outbox/conv-2", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, []string{"", "null", "[]"}, string(env.Data))
}

func TestModule_Surface(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.Equal(t, "turns", f.mod.Name())
	require.Equal(t, "/turns", f.mod.Prefix())
	_, ok := f.mod.Ports().(Ports)
	require.True(t, ok)
	pp := f.mod.TurnPorts().ForPipeline()
	require.NotNil(t, pp.OutboxPort)
	require.NotNil(t, pp.LifecyclePort)
}
