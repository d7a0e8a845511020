// Package metrics holds the prometheus collectors shared by the aggregator and the pipeline
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "turnstile"

// Metrics groups every collector the process exports
type Metrics struct {
	reg prometheus.Gatherer

	Appended   *prometheus.CounterVec
	Activity   *prometheus.CounterVec
	Claims     *prometheus.CounterVec
	Flushes    *prometheus.CounterVec
	TurnSize   prometheus.Histogram
	FlushLag   prometheus.Histogram
	Pipeline   *prometheus.CounterVec
	AILatency  prometheus.Histogram
	BusHandled *prometheus.CounterVec
}

// New registers a fresh collector set on reg
// pass prometheus.NewRegistry() in tests to avoid duplicate registration
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		Appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "appends_total",
			Help:      "Append calls by channel and outcome (stored, duplicate, dropped).",
		}, []string{"channel", "result"}),
		Activity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "activity_signals_total",
			Help:      "Liveness signals by activity type and outcome.",
		}, []string{"activity", "result"}),
		Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "claims_total",
			Help:      "Flush claim attempts by outcome (won, lost).",
		}, []string{"result"}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assembler",
			Name:      "flushes_total",
			Help:      "Flush executions by outcome (assembled, noop).",
		}, []string{"result"}),
		TurnSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assembler",
			Name:      "turn_messages",
			Help:      "Number of buffered messages folded into one turn.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		FlushLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "flush_lag_seconds",
			Help:      "Delay between a key becoming due and its claim.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		Pipeline: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "turns_total",
			Help:      "Assembled turns handled by the interview pipeline by outcome.",
		}, []string{"result"}),
		AILatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "collaborator_seconds",
			Help:      "AI collaborator call latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		BusHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handled_total",
			Help:      "Bus messages handled by handler and outcome (ack, nack).",
		}, []string{"handler", "result"}),
	}
	reg.MustRegister(
		m.Appended, m.Activity, m.Claims, m.Flushes, m.TurnSize,
		m.FlushLag, m.Pipeline, m.AILatency, m.BusHandled,
	)
	return m
}

var (
	once sync.Once
	def  *Metrics
)

// Default returns the process-wide collector set backed by its own registry
func Default() *Metrics {
	once.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
		def = New(reg)
	})
	return def
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
