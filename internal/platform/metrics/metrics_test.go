package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersAndCounts(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.Claims.WithLabelValues("won").Inc()
	m.Claims.WithLabelValues("lost").Add(2)

	if got := testutil.ToFloat64(m.Claims.WithLabelValues("lost")); got != 2 {
		t.Fatalf("lost claims = %v, want 2", got)
	}
}

func TestHandler_ExposesNamespace(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.Flushes.WithLabelValues("assembled").Inc()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "turnstile_assembler_flushes_total") {
		t.Fatalf("metrics output missing flush counter:\n%s", body)
	}
}

func TestDefault_IsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Fatalf("Default should return the same instance")
	}
}
