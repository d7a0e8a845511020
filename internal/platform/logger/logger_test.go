package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	kit "turnstile/internal/platform/testkit"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		" INFO ":   zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"panic":    zerolog.PanicLevel,
		"":         zerolog.DebugLevel,
		"chatty":   zerolog.DebugLevel,
		"disabled": zerolog.Disabled,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v want %v", in, got, want)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_SERVICE", "turnstile-worker")
	t.Setenv("LOG_CALLER", "1")
	t.Setenv("LOG_SAMPLE_EVERY", "5")

	opt := FromEnv()
	if opt.Level != "warn" || opt.Format != "json" || opt.Service != "turnstile-worker" || !opt.WithCaller || opt.SampleEvery != 5 {
		t.Fatalf("options = %+v", opt)
	}
}

// lines decodes every JSON line written so far
func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		m := map[string]any{}
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("line %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestInitAndChildren(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Service: "turnstile-api", Writer: &buf})
	Init(Options{Level: "trace", Writer: &bytes.Buffer{}})

	Get().Debug().Msg("below level")
	Named("turns").Info().Msg("named")
	C(WithRequest(context.Background(), "req-1", "conv-1")).Info().Msg("tagged")
	chiCtx := context.WithValue(context.Background(), chimw.RequestIDKey, "req-http")
	C(chiCtx).Info().Msg("http")

	got := lines(t, &buf)
	if len(got) != 3 {
		kit.MustContain(t, buf.String(), "named")
		t.Fatalf("want 3 lines, got %d: %s", len(got), buf.String())
	}
	if got[0]["component"] != "turns" || got[0]["service"] != "turnstile-api" {
		t.Fatalf("named = %v", got[0])
	}
	if got[1]["request_id"] != "req-1" || got[1]["conversation_id"] != "conv-1" {
		t.Fatalf("tagged = %v", got[1])
	}
	if got[2]["request_id"] != "req-http" {
		t.Fatalf("http = %v", got[2])
	}
}
